package pricing

import (
	"math"
	"math/big"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

// SlippageType selects how a trade limit is derived from a quote.
type SlippageType string

const (
	// SlippageFixed uses Value as the limit itself.
	SlippageFixed SlippageType = "fixed"
	// SlippageBasisPoints allows Value basis points of movement against the quote.
	SlippageBasisPoints SlippageType = "bps"
	// SlippageNone disables the limit.
	SlippageNone SlippageType = "none"
)

// SlippageConfig is a trader's tolerance policy.
type SlippageConfig struct {
	Type  SlippageType `json:"type" mapstructure:"type"`
	Value uint64       `json:"value" mapstructure:"value"`
}

// MaxSolCost returns the buy limit for an expected cost.
func MaxSolCost(expected uint64, cfg SlippageConfig) (uint64, error) {
	switch cfg.Type {
	case SlippageFixed:
		return cfg.Value, nil
	case SlippageBasisPoints:
		delta := mulBps(expected, cfg.Value)
		limit := new(big.Int).Add(new(big.Int).SetUint64(expected), delta)
		if !limit.IsUint64() {
			return math.MaxUint64, nil
		}
		return limit.Uint64(), nil
	case SlippageNone:
		return math.MaxUint64, nil
	default:
		return 0, curve.Errorf(curve.ErrInvalidParams, "unknown slippage type %q", cfg.Type)
	}
}

// MinSolOutput returns the sell limit for an expected output.
func MinSolOutput(expected uint64, cfg SlippageConfig) (uint64, error) {
	switch cfg.Type {
	case SlippageFixed:
		return cfg.Value, nil
	case SlippageBasisPoints:
		if cfg.Value > curve.BasisPointsDenominator {
			return 0, curve.Errorf(curve.ErrInvalidParams, "sell slippage %d bps exceeds %d", cfg.Value, curve.BasisPointsDenominator)
		}
		// The tolerance rounds down.
		return expected - mulBps(expected, cfg.Value).Uint64(), nil
	case SlippageNone:
		return 0, nil
	default:
		return 0, curve.Errorf(curve.ErrInvalidParams, "unknown slippage type %q", cfg.Type)
	}
}

func mulBps(amount, bps uint64) *big.Int {
	v := new(big.Int).SetUint64(amount)
	v.Mul(v, new(big.Int).SetUint64(bps))
	return v.Quo(v, big.NewInt(curve.BasisPointsDenominator))
}
