// =============================
// File: internal/ledger/records.go
// =============================
package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

type record interface {
	MarshalRecord() ([]byte, error)
	UnmarshalRecord(data []byte) error
}

func (tx *Tx) getRecord(key []byte, r record) (bool, error) {
	data, ok, err := tx.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := r.UnmarshalRecord(data); err != nil {
		return false, err
	}
	return true, nil
}

func (tx *Tx) putRecord(key []byte, r record) error {
	data, err := r.MarshalRecord()
	if err != nil {
		return err
	}
	return tx.put(key, data)
}

// Config loads the GlobalConfig stored at addr. A missing record is returned
// as the zero value, which reads as not initialized.
func (tx *Tx) Config(addr solana.PublicKey) (*curve.GlobalConfig, error) {
	cfg := &curve.GlobalConfig{}
	if _, err := tx.getRecord(ConfigKey(addr), cfg); err != nil {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}
	return cfg, nil
}

func (tx *Tx) PutConfig(addr solana.PublicKey, cfg *curve.GlobalConfig) error {
	return tx.putRecord(ConfigKey(addr), cfg)
}

// Curve loads the bonding curve stored at addr.
func (tx *Tx) Curve(addr solana.PublicKey) (*curve.BondingCurve, error) {
	bc := &curve.BondingCurve{}
	ok, err := tx.getRecord(CurveKey(addr), bc)
	if err != nil {
		return nil, fmt.Errorf("failed to load bonding curve %s: %w", addr, err)
	}
	if !ok {
		return nil, curve.Errorf(curve.ErrBondingCurveNotFound, "no bonding curve at %s", addr)
	}
	return bc, nil
}

func (tx *Tx) PutCurve(addr solana.PublicKey, bc *curve.BondingCurve) error {
	return tx.putRecord(CurveKey(addr), bc)
}

// Asset loads the asset record of mint; ok is false when the mint is unknown.
func (tx *Tx) Asset(mint solana.PublicKey) (*curve.AssetRecord, bool, error) {
	a := &curve.AssetRecord{}
	ok, err := tx.getRecord(AssetKey(mint), a)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load asset %s: %w", mint, err)
	}
	return a, ok, nil
}

func (tx *Tx) PutAsset(a *curve.AssetRecord) error {
	return tx.putRecord(AssetKey(a.Mint), a)
}

// Metadata loads the descriptive metadata of mint.
func (tx *Tx) Metadata(mint solana.PublicKey) (*curve.Metadata, bool, error) {
	m := &curve.Metadata{}
	ok, err := tx.getRecord(MetadataKey(mint), m)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load metadata %s: %w", mint, err)
	}
	return m, ok, nil
}

func (tx *Tx) PutMetadata(m *curve.Metadata) error {
	return tx.putRecord(MetadataKey(m.Mint), m)
}

// Exists reports whether a marker is set at addr.
func (tx *Tx) Exists(addr solana.PublicKey) (bool, error) {
	_, ok, err := tx.get(MarkerKey(addr))
	return ok, err
}

// Mark sets the marker at addr.
func (tx *Tx) Mark(addr solana.PublicKey) error {
	return tx.put(MarkerKey(addr), []byte{1})
}
