// =============================
// File: internal/ledger/balances.go
// =============================
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	smath "github.com/ava-labs/avalanchego/utils/math"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

func (tx *Tx) getUint64(key []byte) (uint64, error) {
	data, ok, err := tx.get(key)
	if err != nil || !ok {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt balance entry: %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (tx *Tx) putUint64(key []byte, v uint64) error {
	return tx.put(key, binary.BigEndian.AppendUint64(nil, v))
}

// add credits amount to the balance stored at key.
func (tx *Tx) add(key []byte, amount uint64) error {
	bal, err := tx.getUint64(key)
	if err != nil {
		return err
	}
	nbal, err := smath.Add(bal, amount)
	if err != nil {
		return curve.Errorf(curve.ErrArithmeticOverflow, "balance %d + %d", bal, amount)
	}
	return tx.putUint64(key, nbal)
}

// sub debits amount from the balance stored at key.
func (tx *Tx) sub(key []byte, amount uint64) error {
	bal, err := tx.getUint64(key)
	if err != nil {
		return err
	}
	nbal, err := smath.Sub(bal, amount)
	if err != nil {
		return curve.Errorf(curve.ErrInsufficientFunds, "balance %d < %d", bal, amount)
	}
	return tx.putUint64(key, nbal)
}

// Lamports returns the native currency balance of owner.
func (tx *Tx) Lamports(owner solana.PublicKey) (uint64, error) {
	return tx.getUint64(LamportsKey(owner))
}

func (tx *Tx) CreditLamports(owner solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return tx.add(LamportsKey(owner), amount)
}

func (tx *Tx) DebitLamports(owner solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return tx.sub(LamportsKey(owner), amount)
}

// TransferLamports moves amount from one identity to another.
func (tx *Tx) TransferLamports(from, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from.Equals(to) {
		// A self transfer still requires the balance to cover it.
		bal, err := tx.Lamports(from)
		if err != nil {
			return err
		}
		if bal < amount {
			return curve.Errorf(curve.ErrInsufficientFunds, "balance %d < %d", bal, amount)
		}
		return nil
	}
	if err := tx.DebitLamports(from, amount); err != nil {
		return fmt.Errorf("transfer %d lamports from %s: %w", amount, from, err)
	}
	if err := tx.CreditLamports(to, amount); err != nil {
		return fmt.Errorf("transfer %d lamports to %s: %w", amount, to, err)
	}
	return nil
}

// TokenBalance returns the amount of mint held by owner.
func (tx *Tx) TokenBalance(mint, owner solana.PublicKey) (uint64, error) {
	return tx.getUint64(TokenKey(mint, owner))
}

// TransferTokens moves amount units of mint between holders.
func (tx *Tx) TransferTokens(mint, from, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if _, ok, err := tx.Asset(mint); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("mint %s: %w", mint, ErrNotFound)
	}

	if from.Equals(to) {
		bal, err := tx.TokenBalance(mint, from)
		if err != nil {
			return err
		}
		if bal < amount {
			return curve.Errorf(curve.ErrInsufficientFunds, "token balance %d < %d", bal, amount)
		}
		return nil
	}
	if err := tx.sub(TokenKey(mint, from), amount); err != nil {
		return fmt.Errorf("transfer %d tokens from %s: %w", amount, from, err)
	}
	if err := tx.add(TokenKey(mint, to), amount); err != nil {
		return fmt.Errorf("transfer %d tokens to %s: %w", amount, to, err)
	}
	return nil
}

// ErrIssuanceDisabled is returned when minting into a closed asset.
var ErrIssuanceDisabled = errors.New("ledger: issuance disabled for asset")

// MintTokens issues amount new units of mint to owner.
func (tx *Tx) MintTokens(mint, owner solana.PublicKey, amount uint64) error {
	a, ok, err := tx.Asset(mint)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mint %s: %w", mint, ErrNotFound)
	}
	if a.IssuanceDisabled {
		return fmt.Errorf("mint %s: %w", mint, ErrIssuanceDisabled)
	}
	supply, err := smath.Add(a.Supply, amount)
	if err != nil {
		return curve.Errorf(curve.ErrArithmeticOverflow, "supply %d + %d", a.Supply, amount)
	}
	if err := tx.add(TokenKey(mint, owner), amount); err != nil {
		return err
	}
	a.Supply = supply
	return tx.PutAsset(a)
}

// DisableIssuance permanently closes mint to further issuance.
func (tx *Tx) DisableIssuance(mint solana.PublicKey) error {
	a, ok, err := tx.Asset(mint)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mint %s: %w", mint, ErrNotFound)
	}
	a.IssuanceDisabled = true
	return tx.PutAsset(a)
}
