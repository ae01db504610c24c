// Package registry holds the asset issuance and metadata collaborators used
// by create, together with implementations that keep their records in the
// ledger.
package registry

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/ledger"
	"go.uber.org/zap"
)

var ErrMintExists = errors.New("registry: mint already exists")

// AssetRegistry allocates fresh asset identities and issues their supply.
type AssetRegistry interface {
	// Allocate returns an unused asset identity.
	Allocate() (solana.PublicKey, error)
	// Issue creates mint, credits its whole supply to custody and closes it
	// to further issuance, all inside tx.
	Issue(tx *ledger.Tx, mint, custody solana.PublicKey, supply uint64) error
}

// MetadataPublisher records descriptive metadata for an asset.
type MetadataPublisher interface {
	Publish(tx *ledger.Tx, md *curve.Metadata) error
}

// LedgerRegistry implements AssetRegistry on ledger asset records.
type LedgerRegistry struct {
	newMint func() solana.PublicKey
	logger  *zap.Logger
}

// Option configures a LedgerRegistry.
type Option func(*LedgerRegistry)

// WithMintGenerator replaces the random mint allocator.
func WithMintGenerator(gen func() solana.PublicKey) Option {
	return func(r *LedgerRegistry) {
		r.newMint = gen
	}
}

func NewLedgerRegistry(logger *zap.Logger, opts ...Option) *LedgerRegistry {
	r := &LedgerRegistry{
		newMint: func() solana.PublicKey { return solana.NewWallet().PublicKey() },
		logger:  logger.Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *LedgerRegistry) Allocate() (solana.PublicKey, error) {
	mint := r.newMint()
	if mint.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("mint generator returned the zero key")
	}
	return mint, nil
}

func (r *LedgerRegistry) Issue(tx *ledger.Tx, mint, custody solana.PublicKey, supply uint64) error {
	if _, exists, err := tx.Asset(mint); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%s: %w", mint, ErrMintExists)
	}

	if err := tx.PutAsset(&curve.AssetRecord{Mint: mint, Decimals: curve.TokenDecimals}); err != nil {
		return err
	}
	if err := tx.MintTokens(mint, custody, supply); err != nil {
		return fmt.Errorf("failed to mint supply: %w", err)
	}
	if err := tx.DisableIssuance(mint); err != nil {
		return fmt.Errorf("failed to disable issuance: %w", err)
	}

	r.logger.Debug("Asset issued",
		zap.String("mint", mint.String()),
		zap.String("custody", custody.String()),
		zap.String("supply", curve.FormatTokens(supply)))
	return nil
}

// LedgerMetadata implements MetadataPublisher on ledger metadata records.
type LedgerMetadata struct{}

// Publish stores md. Metadata is immutable once written.
func (LedgerMetadata) Publish(tx *ledger.Tx, md *curve.Metadata) error {
	if _, exists, err := tx.Metadata(md.Mint); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("metadata for %s: %w", md.Mint, ErrMintExists)
	}
	return tx.PutMetadata(md)
}
