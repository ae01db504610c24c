// internal/events/codec.go
package events

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes ev for the event log.
func Encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Type(), err)
	}
	return json.Marshal(envelope{Type: ev.Type(), Payload: payload})
}

// Decode restores an event written by Encode.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}

	var ev Event
	switch env.Type {
	case Created:
		ev = &CreatedEvent{}
	case Traded:
		ev = &TradeEvent{}
	case Completed:
		ev = &CompleteEvent{}
	case Withdrawn:
		ev = &WithdrawEvent{}
	case ParamsChanged:
		ev = &ParamsChangedEvent{}
	case Deposited:
		ev = &DepositEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	if err := json.Unmarshal(env.Payload, ev); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", env.Type, err)
	}
	return ev, nil
}
