// =============================
// File: internal/curve/layout.go
// =============================
package curve

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Encoded payload sizes, excluding the 8-byte discriminator.
const (
	GlobalConfigLen = 1 + 32 + 32 + 32 + 8 + 8 + 8 + 8 + 2 + 8 + 2 + 2 + 8 + 8
	BondingCurveLen = 32 + 8 + 8 + 8 + 8 + 8 + 1 + 32 + 32

	DiscriminatorLen = 8
)

// Rent parameters of the host ledger, used to size the reserve a curve's
// custody must always retain.
const (
	accountStorageOverhead = 128
	lamportsPerByteYear    = 3480
	exemptionThreshold     = 2

	// WithdrawSafetyMargin is left in custody on top of the rent reserve.
	WithdrawSafetyMargin uint64 = 10_000
)

var (
	globalConfigDiscriminator = discriminator("GlobalConfig")
	bondingCurveDiscriminator = discriminator("BondingCurve")
	assetRecordDiscriminator  = discriminator("AssetRecord")
	metadataDiscriminator     = discriminator("Metadata")
)

func discriminator(name string) [DiscriminatorLen]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorLen]byte
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

// MinimumBalance returns the rent-exempt balance of a record with dataLen payload bytes.
func MinimumBalance(dataLen int) uint64 {
	return uint64(accountStorageOverhead+dataLen) * lamportsPerByteYear * exemptionThreshold
}

// CurveReserve is the balance a curve's custody keeps after withdrawal.
func CurveReserve() uint64 {
	return MinimumBalance(DiscriminatorLen + BondingCurveLen)
}

func encodeRecord(disc [DiscriminatorLen]byte, v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte, disc [DiscriminatorLen]byte, v interface{}) error {
	if len(data) < DiscriminatorLen {
		return fmt.Errorf("record too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:DiscriminatorLen], disc[:]) {
		return fmt.Errorf("record discriminator mismatch")
	}
	if err := bin.NewBorshDecoder(data[DiscriminatorLen:]).Decode(v); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

func (g *GlobalConfig) MarshalRecord() ([]byte, error) {
	return encodeRecord(globalConfigDiscriminator, g)
}

func (g *GlobalConfig) UnmarshalRecord(data []byte) error {
	return decodeRecord(data, globalConfigDiscriminator, g)
}

func (bc *BondingCurve) MarshalRecord() ([]byte, error) {
	return encodeRecord(bondingCurveDiscriminator, bc)
}

func (bc *BondingCurve) UnmarshalRecord(data []byte) error {
	return decodeRecord(data, bondingCurveDiscriminator, bc)
}

func (a *AssetRecord) MarshalRecord() ([]byte, error) {
	return encodeRecord(assetRecordDiscriminator, a)
}

func (a *AssetRecord) UnmarshalRecord(data []byte) error {
	return decodeRecord(data, assetRecordDiscriminator, a)
}

func (m *Metadata) MarshalRecord() ([]byte, error) {
	return encodeRecord(metadataDiscriminator, m)
}

func (m *Metadata) UnmarshalRecord(data []byte) error {
	return decodeRecord(data, metadataDiscriminator, m)
}
