package fees

import (
	"fmt"

	smath "github.com/ava-labs/avalanchego/utils/math"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

// WithdrawPlan is the split of a graduated curve's custody.
type WithdrawPlan struct {
	CreatorTokens uint64
	CallerTokens  uint64

	// Withdrawable is custody above the reserve and safety margin.
	Withdrawable  uint64
	FirstBuyerSol uint64
	ProtocolSol   uint64
	// AdminSol is what is left for the caller after both shares.
	AdminSol uint64
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// PlanWithdrawal splits tokenBalance and custodyLamports. The custody always
// keeps reserve plus curve.WithdrawSafetyMargin; shares that do not fit are
// floored at zero rather than failing, but a plan with nothing left for the
// caller is rejected.
func PlanWithdrawal(tokenBalance, custodyLamports, reserve uint64, cfg *curve.GlobalConfig) (WithdrawPlan, error) {
	creatorTokens, err := Portion(tokenBalance, cfg.TokenShareCreatorBasisPoints)
	if err != nil {
		return WithdrawPlan{}, err
	}

	kept, err := smath.Add(reserve, curve.WithdrawSafetyMargin)
	if err != nil {
		kept = ^uint64(0)
	}
	withdrawable := saturatingSub(custodyLamports, kept)
	admin := saturatingSub(saturatingSub(withdrawable, cfg.SolShareFirstBuyerAfterGraduation), cfg.SolShareProtocolAfterGraduation)
	if admin == 0 {
		return WithdrawPlan{}, curve.Errorf(curve.ErrInsufficientFunds,
			"custody %d leaves nothing to withdraw above reserve %d and shares %d/%d",
			custodyLamports, kept, cfg.SolShareFirstBuyerAfterGraduation, cfg.SolShareProtocolAfterGraduation)
	}

	return WithdrawPlan{
		CreatorTokens: creatorTokens,
		CallerTokens:  tokenBalance - creatorTokens,
		Withdrawable:  withdrawable,
		FirstBuyerSol: cfg.SolShareFirstBuyerAfterGraduation,
		ProtocolSol:   cfg.SolShareProtocolAfterGraduation,
		AdminSol:      admin,
	}, nil
}

// Parties names every identity a withdrawal pays.
type Parties struct {
	Mint         solana.PublicKey
	Custody      solana.PublicKey
	Creator      solana.PublicKey
	Caller       solana.PublicKey
	FirstBuyer   solana.PublicKey
	FeeRecipient solana.PublicKey
}

// PayGraduation executes plan in order: creator tokens, caller tokens,
// first-buyer share, protocol share, caller residual.
func PayGraduation(m Mover, p Parties, plan WithdrawPlan) error {
	if err := m.TransferTokens(p.Mint, p.Custody, p.Creator, plan.CreatorTokens); err != nil {
		return fmt.Errorf("creator token share: %w", err)
	}
	if err := m.TransferTokens(p.Mint, p.Custody, p.Caller, plan.CallerTokens); err != nil {
		return fmt.Errorf("caller token share: %w", err)
	}
	if err := m.TransferLamports(p.Custody, p.FirstBuyer, plan.FirstBuyerSol); err != nil {
		return fmt.Errorf("first buyer share: %w", err)
	}
	if err := m.TransferLamports(p.Custody, p.FeeRecipient, plan.ProtocolSol); err != nil {
		return fmt.Errorf("protocol share: %w", err)
	}
	if err := m.TransferLamports(p.Custody, p.Caller, plan.AdminSol); err != nil {
		return fmt.Errorf("withdrawal residual: %w", err)
	}
	return nil
}
