// internal/utils/metrics/collector.go
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/events"
)

const namespace = "pumpcurve"

const (
	StatusSuccess   = "success"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Collector owns the controller's prometheus metrics.
type Collector struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	eventsTotal       *prometheus.CounterVec
	tradeVolume       *prometheus.CounterVec
	completions       *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Controller operations by outcome",
			},
			[]string{"operation", "status", "code"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Controller operation latency in seconds, including commit retries",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"operation"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Event log records appended, by type",
			},
			[]string{"type"},
		),
		tradeVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trade_volume_lamports_total",
				Help:      "Lamports moved through curve custody by trades",
			},
			[]string{"side"},
		),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "curves_completed_total",
				Help:      "Bonding curves that sold out their real token reserves",
			},
			nil,
		),
	}

	if reg != nil {
		reg.MustRegister(c.operations, c.operationDuration, c.eventsTotal, c.tradeVolume, c.completions)
	}
	return c
}

// ObserveOperation records the outcome and latency of one controller call.
func (c *Collector) ObserveOperation(operation string, duration time.Duration, err error) {
	status, code := StatusSuccess, ""
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = StatusCancelled
	default:
		status = StatusFailed
		if cd, ok := curve.CodeOf(err); ok {
			code = cd.String()
		}
	}

	c.operations.WithLabelValues(operation, status, code).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEvents accounts for committed event records.
func (c *Collector) RecordEvents(records []events.Record) {
	for _, rec := range records {
		c.eventsTotal.WithLabelValues(string(rec.Event.Type())).Inc()

		switch ev := rec.Event.(type) {
		case *events.TradeEvent:
			side := "sell"
			if ev.IsBuy {
				side = "buy"
			}
			c.tradeVolume.WithLabelValues(side).Add(float64(ev.SolAmount))
		case *events.CompleteEvent:
			c.completions.WithLabelValues().Inc()
		}
	}
}

// Reset clears every metric (useful in tests).
func (c *Collector) Reset() {
	c.operations.Reset()
	c.operationDuration.Reset()
	c.eventsTotal.Reset()
	c.tradeVolume.Reset()
	c.completions.Reset()
}
