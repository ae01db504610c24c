// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// EventType represents the type of event.
type EventType string

const (
	Created       EventType = "curve.created"
	Traded        EventType = "curve.traded"
	Completed     EventType = "curve.completed"
	Withdrawn     EventType = "curve.withdrawn"
	ParamsChanged EventType = "config.params_changed"
	Deposited     EventType = "account.deposited"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType `json:"type"`
	EventTime time.Time `json:"time"`
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NewBase stamps an event of type typ at t.
func NewBase(typ EventType, t time.Time) BaseEvent {
	return BaseEvent{EventType: typ, EventTime: t.UTC()}
}

// CreatedEvent is emitted when a new asset and its curve are issued.
type CreatedEvent struct {
	BaseEvent
	Name         string           `json:"name"`
	Symbol       string           `json:"symbol"`
	URI          string           `json:"uri"`
	ExternalRef  string           `json:"external_ref"`
	Mint         solana.PublicKey `json:"mint"`
	BondingCurve solana.PublicKey `json:"bonding_curve"`
	User         solana.PublicKey `json:"user"`
	DirectLaunch bool             `json:"direct_launch"`
}

// TradeEvent is emitted for every buy and sell.
type TradeEvent struct {
	BaseEvent
	Mint                 solana.PublicKey `json:"mint"`
	SolAmount            uint64           `json:"sol_amount"`
	TokenAmount          uint64           `json:"token_amount"`
	IsBuy                bool             `json:"is_buy"`
	User                 solana.PublicKey `json:"user"`
	VirtualSolReserves   uint64           `json:"virtual_sol_reserves"`
	VirtualTokenReserves uint64           `json:"virtual_token_reserves"`
}

// CompleteEvent is emitted once, when a curve sells its last real token.
type CompleteEvent struct {
	BaseEvent
	Mint         solana.PublicKey `json:"mint"`
	BondingCurve solana.PublicKey `json:"bonding_curve"`
}

// WithdrawEvent carries the amounts the withdraw authority received.
type WithdrawEvent struct {
	BaseEvent
	Mint        solana.PublicKey `json:"mint"`
	SolAmount   uint64           `json:"sol_amount"`
	TokenAmount uint64           `json:"token_amount"`
}

// DepositEvent records lamports entering the ledger from outside. Genesis
// marks the one-time allocation applied at first start.
type DepositEvent struct {
	BaseEvent
	Owner   solana.PublicKey `json:"owner"`
	Amount  uint64           `json:"amount"`
	Genesis bool             `json:"genesis"`
}

// ParamsChangedEvent records a new protocol parameter set.
type ParamsChangedEvent struct {
	BaseEvent
	FeeRecipient                      solana.PublicKey `json:"fee_recipient"`
	WithdrawAuthority                 solana.PublicKey `json:"withdraw_authority"`
	InitialVirtualTokenReserves       uint64           `json:"initial_virtual_token_reserves"`
	InitialVirtualSolReserves         uint64           `json:"initial_virtual_sol_reserves"`
	InitialRealTokenReserves          uint64           `json:"initial_real_token_reserves"`
	TokenTotalSupply                  uint64           `json:"token_total_supply"`
	FeeBasisPoints                    uint16           `json:"fee_basis_points"`
	MintFeeSol                        uint64           `json:"mint_fee_sol"`
	TradingFeeCreatorBasisPoints      uint16           `json:"trading_fee_creator_basis_points"`
	TokenShareCreatorBasisPoints      uint16           `json:"token_share_creator_basis_points"`
	SolShareFirstBuyerAfterGraduation uint64           `json:"sol_share_first_buyer_after_graduation"`
	SolShareProtocolAfterGraduation   uint64           `json:"sol_share_protocol_after_graduation"`
}

// Record is an event together with its position in the append-only log.
type Record struct {
	Seq   uint64
	Event Event
}
