// =============================
// File: internal/curve/types.go
// =============================
package curve

import (
	"github.com/gagliardetto/solana-go"
)

const (
	// BasisPointsDenominator is the divisor for every basis-point rate.
	BasisPointsDenominator = 10_000

	SolDecimals   = 9
	TokenDecimals = 6
)

// GlobalConfig is the process-wide protocol parameter record.
type GlobalConfig struct {
	Initialized                       bool
	Authority                         solana.PublicKey
	WithdrawAuthority                 solana.PublicKey
	FeeRecipient                      solana.PublicKey
	InitialVirtualTokenReserves       uint64
	InitialVirtualSolReserves         uint64
	InitialRealTokenReserves          uint64
	TokenTotalSupply                  uint64
	FeeBasisPoints                    uint16
	MintFeeSol                        uint64
	TradingFeeCreatorBasisPoints      uint16
	TokenShareCreatorBasisPoints      uint16
	SolShareFirstBuyerAfterGraduation uint64 // flat lamports, not a rate
	SolShareProtocolAfterGraduation   uint64 // flat lamports, not a rate
}

// Params is the full parameter set accepted by setParams.
type Params struct {
	WithdrawAuthority                 solana.PublicKey `mapstructure:"-"`
	FeeRecipient                      solana.PublicKey `mapstructure:"-"`
	InitialVirtualTokenReserves       uint64           `mapstructure:"initial_virtual_token_reserves"`
	InitialVirtualSolReserves         uint64           `mapstructure:"initial_virtual_sol_reserves"`
	InitialRealTokenReserves          uint64           `mapstructure:"initial_real_token_reserves"`
	TokenTotalSupply                  uint64           `mapstructure:"token_total_supply"`
	FeeBasisPoints                    uint16           `mapstructure:"fee_basis_points"`
	MintFeeSol                        uint64           `mapstructure:"mint_fee_sol"`
	TradingFeeCreatorBasisPoints      uint16           `mapstructure:"trading_fee_creator_basis_points"`
	TokenShareCreatorBasisPoints      uint16           `mapstructure:"token_share_creator_basis_points"`
	SolShareFirstBuyerAfterGraduation uint64           `mapstructure:"sol_share_first_buyer_after_graduation"`
	SolShareProtocolAfterGraduation   uint64           `mapstructure:"sol_share_protocol_after_graduation"`
}

// Validate rejects parameter sets that would make every new curve unusable.
func (p Params) Validate() error {
	switch {
	case p.FeeBasisPoints > BasisPointsDenominator:
		return Errorf(ErrInvalidParams, "fee_basis_points %d exceeds %d", p.FeeBasisPoints, BasisPointsDenominator)
	case p.TradingFeeCreatorBasisPoints > BasisPointsDenominator:
		return Errorf(ErrInvalidParams, "trading_fee_creator_basis_points %d exceeds %d", p.TradingFeeCreatorBasisPoints, BasisPointsDenominator)
	case p.TokenShareCreatorBasisPoints > BasisPointsDenominator:
		return Errorf(ErrInvalidParams, "token_share_creator_basis_points %d exceeds %d", p.TokenShareCreatorBasisPoints, BasisPointsDenominator)
	case p.InitialVirtualTokenReserves == 0 || p.InitialVirtualSolReserves == 0:
		return Errorf(ErrInvalidParams, "virtual reserves must be non-zero")
	case p.InitialRealTokenReserves >= p.InitialVirtualTokenReserves:
		return Errorf(ErrInvalidParams, "real token reserves %d must stay below virtual token reserves %d",
			p.InitialRealTokenReserves, p.InitialVirtualTokenReserves)
	case p.InitialRealTokenReserves > p.TokenTotalSupply:
		return Errorf(ErrInvalidParams, "real token reserves %d exceed total supply %d",
			p.InitialRealTokenReserves, p.TokenTotalSupply)
	case p.FeeRecipient.IsZero():
		return Errorf(ErrInvalidParams, "fee recipient is required")
	case p.WithdrawAuthority.IsZero():
		return Errorf(ErrInvalidParams, "withdraw authority is required")
	}
	return nil
}

// Apply overwrites every settable field of g with p. Authority and the
// initialized flag are untouched.
func (g *GlobalConfig) Apply(p Params) {
	g.WithdrawAuthority = p.WithdrawAuthority
	g.FeeRecipient = p.FeeRecipient
	g.InitialVirtualTokenReserves = p.InitialVirtualTokenReserves
	g.InitialVirtualSolReserves = p.InitialVirtualSolReserves
	g.InitialRealTokenReserves = p.InitialRealTokenReserves
	g.TokenTotalSupply = p.TokenTotalSupply
	g.FeeBasisPoints = p.FeeBasisPoints
	g.MintFeeSol = p.MintFeeSol
	g.TradingFeeCreatorBasisPoints = p.TradingFeeCreatorBasisPoints
	g.TokenShareCreatorBasisPoints = p.TokenShareCreatorBasisPoints
	g.SolShareFirstBuyerAfterGraduation = p.SolShareFirstBuyerAfterGraduation
	g.SolShareProtocolAfterGraduation = p.SolShareProtocolAfterGraduation
}

// HasParams reports whether setParams has seeded the curve parameters.
func (g *GlobalConfig) HasParams() bool {
	return g.InitialVirtualTokenReserves != 0 && g.InitialVirtualSolReserves != 0
}

// BondingCurve is the per-asset reserve record.
type BondingCurve struct {
	Mint                 solana.PublicKey
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
	CreatorAddress       solana.PublicKey
	FirstBuyerAddress    solana.PublicKey
}

// NewBondingCurve seeds a curve for mint from the current configuration.
func NewBondingCurve(mint, creator solana.PublicKey, cfg *GlobalConfig) *BondingCurve {
	return &BondingCurve{
		Mint:                 mint,
		VirtualTokenReserves: cfg.InitialVirtualTokenReserves,
		VirtualSolReserves:   cfg.InitialVirtualSolReserves,
		RealTokenReserves:    cfg.InitialRealTokenReserves,
		RealSolReserves:      0,
		TokenTotalSupply:     cfg.TokenTotalSupply,
		Complete:             false,
		CreatorAddress:       creator,
	}
}

// HasFirstBuyer reports whether the first buyer has been recorded.
func (bc *BondingCurve) HasFirstBuyer() bool {
	return !bc.FirstBuyerAddress.IsZero()
}

// AssetRecord tracks issuance of one fungible asset.
type AssetRecord struct {
	Mint             solana.PublicKey
	Decimals         uint8
	Supply           uint64
	IssuanceDisabled bool
}

// Metadata is the descriptive record published for an asset.
type Metadata struct {
	Mint                 solana.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	IsMutable            bool
}
