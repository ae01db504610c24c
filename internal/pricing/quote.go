// =============================
// File: internal/pricing/quote.go
// =============================
package pricing

import (
	"math/big"

	smath "github.com/ava-labs/avalanchego/utils/math"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

const (
	// ScalingFactor converts the raw reserve delta into lamports actually paid.
	ScalingFactor uint64 = 100
	// PricePrecision gives the average price 6 fractional digits.
	PricePrecision uint64 = 1_000_000
)

// Quote is the outcome of pricing one trade against a curve.
type Quote struct {
	PricePerToken           uint64
	SolAmount               uint64
	NewVirtualTokenReserves uint64
	NewVirtualSolReserves   uint64
}

// QuoteBuy prices buying amountOut tokens from bc.
//
// The stored virtual sol reserves are k / newVirtualTokenReserves floored, but
// the cost is taken from the ceiling of that quotient and scaled down rounding
// up, so any non-zero buy costs at least one lamport and a buy never costs
// less than selling the same amount back returns.
func QuoteBuy(amountOut uint64, bc *curve.BondingCurve) (Quote, error) {
	if amountOut > bc.RealTokenReserves {
		return Quote{}, curve.Errorf(curve.ErrInsufficientTokens,
			"requested %d, available %d", amountOut, bc.RealTokenReserves)
	}

	k := constantProduct(bc.VirtualTokenReserves, bc.VirtualSolReserves)

	newVirtualTokenReserves, err := smath.Sub(bc.VirtualTokenReserves, amountOut)
	if err != nil {
		return Quote{}, curve.Errorf(curve.ErrArithmeticOverflow, "virtual token reserves %d - %d", bc.VirtualTokenReserves, amountOut)
	}

	newVirtualSolReserves, exact, err := divmod(k, newVirtualTokenReserves)
	if err != nil {
		return Quote{}, err
	}

	solRequired, err := smath.Sub(newVirtualSolReserves, bc.VirtualSolReserves)
	if err != nil {
		return Quote{}, curve.Errorf(curve.ErrArithmeticOverflow, "virtual sol reserves decreased on buy")
	}
	if !exact {
		// Cannot overflow: solRequired < newVirtualSolReserves.
		solRequired++
	}

	solCost := ceilDiv(solRequired, ScalingFactor)
	price, err := averagePrice(solCost, amountOut)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		PricePerToken:           price,
		SolAmount:               solCost,
		NewVirtualTokenReserves: newVirtualTokenReserves,
		NewVirtualSolReserves:   newVirtualSolReserves,
	}, nil
}

// QuoteSell prices selling amountIn tokens into bc. There is no inventory
// bound on this side; the real currency reserve is checked at settlement.
func QuoteSell(amountIn uint64, bc *curve.BondingCurve) (Quote, error) {
	k := constantProduct(bc.VirtualTokenReserves, bc.VirtualSolReserves)

	newVirtualTokenReserves, err := smath.Add(bc.VirtualTokenReserves, amountIn)
	if err != nil {
		return Quote{}, curve.Errorf(curve.ErrArithmeticOverflow, "virtual token reserves %d + %d", bc.VirtualTokenReserves, amountIn)
	}

	newVirtualSolReserves, err := divide(k, newVirtualTokenReserves)
	if err != nil {
		return Quote{}, err
	}

	solReceived, err := smath.Sub(bc.VirtualSolReserves, newVirtualSolReserves)
	if err != nil {
		return Quote{}, curve.Errorf(curve.ErrArithmeticOverflow, "virtual sol reserves increased on sell")
	}

	solOutput := solReceived / ScalingFactor
	price, err := averagePrice(solOutput, amountIn)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		PricePerToken:           price,
		SolAmount:               solOutput,
		NewVirtualTokenReserves: newVirtualTokenReserves,
		NewVirtualSolReserves:   newVirtualSolReserves,
	}, nil
}

// constantProduct returns k in 128-bit-safe arithmetic.
func constantProduct(virtualTokenReserves, virtualSolReserves uint64) *big.Int {
	x := new(big.Int).SetUint64(virtualTokenReserves)
	y := new(big.Int).SetUint64(virtualSolReserves)
	return x.Mul(x, y)
}

func divide(k *big.Int, denominator uint64) (uint64, error) {
	q, _, err := divmod(k, denominator)
	return q, err
}

// divmod returns floor(k / denominator) and whether the division was exact.
func divmod(k *big.Int, denominator uint64) (uint64, bool, error) {
	if denominator == 0 {
		return 0, false, curve.Errorf(curve.ErrArithmeticOverflow, "division by zero virtual token reserves")
	}
	q, r := new(big.Int).QuoRem(k, new(big.Int).SetUint64(denominator), new(big.Int))
	if !q.IsUint64() {
		return 0, false, curve.Errorf(curve.ErrArithmeticOverflow, "virtual sol reserves exceed 64 bits")
	}
	return q.Uint64(), r.Sign() == 0, nil
}

func ceilDiv(a, b uint64) uint64 {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

func averagePrice(solAmount, tokenAmount uint64) (uint64, error) {
	scaled, err := smath.Mul(solAmount, PricePrecision)
	if err != nil {
		return 0, curve.Errorf(curve.ErrArithmeticOverflow, "price numerator %d * %d", solAmount, PricePrecision)
	}
	if tokenAmount == 0 {
		return 0, curve.Errorf(curve.ErrArithmeticOverflow, "zero token amount")
	}
	return scaled / tokenAmount, nil
}
