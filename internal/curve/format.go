package curve

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatLamports renders a lamport amount in whole SOL.
func FormatLamports(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -SolDecimals).String()
}

// FormatTokens renders a raw token amount in whole tokens.
func FormatTokens(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -TokenDecimals).String()
}
