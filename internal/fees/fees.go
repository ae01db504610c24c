// Package fees computes basis-point portions and moves trade fees and
// graduation shares. It never decides whether a payment is due; callers do.
package fees

import (
	"fmt"
	"math/bits"

	smath "github.com/ava-labs/avalanchego/utils/math"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

// Mover is the subset of a ledger transaction fee distribution needs.
type Mover interface {
	TransferLamports(from, to solana.PublicKey, amount uint64) error
	TransferTokens(mint, from, to solana.PublicKey, amount uint64) error
}

// Portion returns floor(amount * bps / 10000).
func Portion(amount uint64, bps uint16) (uint64, error) {
	hi, lo := bits.Mul64(amount, uint64(bps))
	if hi >= curve.BasisPointsDenominator {
		return 0, curve.Errorf(curve.ErrArithmeticOverflow, "%d * %d bps", amount, bps)
	}
	q, _ := bits.Div64(hi, lo, curve.BasisPointsDenominator)
	return q, nil
}

// TradeFees are paid by the trader on top of the pool-bound amount.
type TradeFees struct {
	Platform uint64
	Creator  uint64
}

// Total is the sum of both fees.
func (f TradeFees) Total() (uint64, error) {
	total, err := smath.Add(f.Platform, f.Creator)
	if err != nil {
		return 0, curve.Errorf(curve.ErrArithmeticOverflow, "fees %d + %d", f.Platform, f.Creator)
	}
	return total, nil
}

// ComputeTradeFees applies the configured platform and creator rates to solAmount.
func ComputeTradeFees(solAmount uint64, cfg *curve.GlobalConfig) (TradeFees, error) {
	platform, err := Portion(solAmount, cfg.FeeBasisPoints)
	if err != nil {
		return TradeFees{}, err
	}
	creator, err := Portion(solAmount, cfg.TradingFeeCreatorBasisPoints)
	if err != nil {
		return TradeFees{}, err
	}
	return TradeFees{Platform: platform, Creator: creator}, nil
}

// ChargeTradeFees pays the platform fee and then the creator fee from payer.
func ChargeTradeFees(m Mover, payer, feeRecipient, creator solana.PublicKey, f TradeFees) error {
	if err := m.TransferLamports(payer, feeRecipient, f.Platform); err != nil {
		return fmt.Errorf("platform fee: %w", err)
	}
	if err := m.TransferLamports(payer, creator, f.Creator); err != nil {
		return fmt.Errorf("creator fee: %w", err)
	}
	return nil
}
