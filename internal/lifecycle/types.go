package lifecycle

import (
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/fees"
	"github.com/rovshanmuradov/pumpcurve/internal/pricing"
)

// CreateRequest issues a new asset and opens its curve.
type CreateRequest struct {
	Creator      solana.PublicKey
	Name         string
	Symbol       string
	URI          string
	ExternalRef  string
	DirectLaunch bool
}

type CreateResult struct {
	Mint         solana.PublicKey
	BondingCurve solana.PublicKey
}

// TradeRequest is shared by Buy and Sell. Limit is the maximum cost of a buy
// or the minimum output of a sell. When Slippage is set the limit is derived
// from Expected, the quote the trader saw, and Limit is ignored.
// FeeRecipient and Creator name the identities the trader expects to pay and
// must match the stored ones.
type TradeRequest struct {
	User         solana.PublicKey
	Mint         solana.PublicKey
	Amount       uint64
	Limit        uint64
	Expected     uint64
	Slippage     *pricing.SlippageConfig
	FeeRecipient solana.PublicKey
	Creator      solana.PublicKey
}

func (r TradeRequest) buyLimit() (uint64, error) {
	if r.Slippage == nil {
		return r.Limit, nil
	}
	return pricing.MaxSolCost(r.Expected, *r.Slippage)
}

func (r TradeRequest) sellLimit() (uint64, error) {
	if r.Slippage == nil {
		return r.Limit, nil
	}
	return pricing.MinSolOutput(r.Expected, *r.Slippage)
}

type TradeResult struct {
	SolAmount     uint64
	TokenAmount   uint64
	PricePerToken uint64
	Fees          fees.TradeFees
	Completed     bool
	Curve         curve.BondingCurve
}

// WithdrawRequest drains a graduated curve. The identities must match the
// configuration and curve record.
type WithdrawRequest struct {
	Caller       solana.PublicKey
	Mint         solana.PublicKey
	FeeRecipient solana.PublicKey
	Creator      solana.PublicKey
	FirstBuyer   solana.PublicKey
}

type WithdrawResult struct {
	Plan  fees.WithdrawPlan
	Curve curve.BondingCurve
}
