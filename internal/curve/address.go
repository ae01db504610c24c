package curve

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Address namespace tags.
const (
	SeedGlobal       = "global"
	SeedBondingCurve = "bonding_curve"
	SeedExternalRef  = "instagram_post"
	SeedGenesis      = "genesis"
)

// ConfigAddress derives the address of the GlobalConfig record.
func ConfigAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(SeedGlobal)}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive global config address: %w", err)
	}
	return addr, nil
}

// BondingCurveAddress derives the curve record address of mint. The same
// address owns the curve's custody balances.
func BondingCurveAddress(programID, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(SeedBondingCurve), mint.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive bonding curve address: %w", err)
	}
	return addr, nil
}

// ExternalRefAddress derives the marker address that reserves an external
// reference id. Seeds are limited to 32 bytes, so longer ids are rejected.
func ExternalRefAddress(programID solana.PublicKey, ref string) (solana.PublicKey, error) {
	if len(ref) > solana.MaxSeedLength {
		return solana.PublicKey{}, Errorf(ErrInvalidParams, "external reference %q longer than %d bytes", ref, solana.MaxSeedLength)
	}
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(SeedExternalRef), []byte(ref)},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive external reference address: %w", err)
	}
	return addr, nil
}

// GenesisAddress derives the marker address set once the genesis allocation
// has been applied.
func GenesisAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(SeedGenesis)}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive genesis address: %w", err)
	}
	return addr, nil
}
