// Package lifecycle implements the bonding curve state machine: protocol
// initialization and parameters, asset creation, trading and graduation
// withdrawal. Every operation runs as one ledger transaction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/events"
	"github.com/rovshanmuradov/pumpcurve/internal/ledger"
	"github.com/rovshanmuradov/pumpcurve/internal/pricing"
	"github.com/rovshanmuradov/pumpcurve/internal/registry"
	"github.com/rovshanmuradov/pumpcurve/internal/utils/logger"
	"github.com/rovshanmuradov/pumpcurve/internal/utils/metrics"
	"go.uber.org/zap"
)

const (
	OpInitialize = "initialize"
	OpSetParams  = "set_params"
	OpCreate     = "create"
	OpBuy        = "buy"
	OpSell       = "sell"
	OpWithdraw   = "withdraw"
)

// ControllerConfig wires a Controller. Bus and Metrics are optional.
type ControllerConfig struct {
	ProgramID solana.PublicKey
	DB        *ledger.DB
	Assets    registry.AssetRegistry
	Metadata  registry.MetadataPublisher
	Bus       *events.Bus
	Metrics   *metrics.Collector
	Logger    *zap.Logger

	// WithdrawRequiresComplete rejects withdrawal from curves still trading.
	WithdrawRequiresComplete bool
}

// Controller is the only writer of protocol state.
type Controller struct {
	programID  solana.PublicKey
	configAddr solana.PublicKey

	db       *ledger.DB
	assets   registry.AssetRegistry
	metadata registry.MetadataPublisher
	metrics  *metrics.Collector
	logger   *logger.Logger

	withdrawRequiresComplete bool
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.DB == nil {
		return nil, errors.New("lifecycle: ledger is required")
	}
	if cfg.ProgramID.IsZero() {
		return nil, errors.New("lifecycle: program id is required")
	}
	configAddr, err := curve.ConfigAddress(cfg.ProgramID)
	if err != nil {
		return nil, err
	}

	zl := cfg.Logger
	if zl == nil {
		zl = zap.NewNop()
	}
	c := &Controller{
		programID:                cfg.ProgramID,
		configAddr:               configAddr,
		db:                       cfg.DB,
		assets:                   cfg.Assets,
		metadata:                 cfg.Metadata,
		metrics:                  cfg.Metrics,
		logger:                   logger.Wrap(zl.Named("lifecycle")),
		withdrawRequiresComplete: cfg.WithdrawRequiresComplete,
	}
	if c.assets == nil {
		c.assets = registry.NewLedgerRegistry(zl)
	}
	if c.metadata == nil {
		c.metadata = registry.LedgerMetadata{}
	}

	bus := cfg.Bus
	metricsCollector := cfg.Metrics
	if bus != nil || metricsCollector != nil {
		cfg.DB.OnCommit(func(records []events.Record) {
			if metricsCollector != nil {
				metricsCollector.RecordEvents(records)
			}
			if bus == nil {
				return
			}
			for _, rec := range records {
				// Subscribers can always catch up from the log.
				_ = bus.Publish(rec)
			}
		})
	}

	return c, nil
}

// ConfigAddress is where the GlobalConfig record lives.
func (c *Controller) ConfigAddress() solana.PublicKey {
	return c.configAddr
}

// update runs fn as one transaction and accounts for the outcome.
func (c *Controller) update(ctx context.Context, op string, log *zap.Logger, fn func(tx *ledger.Tx) error) error {
	start := time.Now()
	records, err := c.db.Update(ctx, fn)
	if c.metrics != nil {
		c.metrics.ObserveOperation(op, time.Since(start), err)
	}
	if err != nil {
		if code, ok := curve.CodeOf(err); ok {
			log.Warn("Operation rejected", zap.String("code", code.String()), zap.Error(err))
		} else {
			log.Error("Operation failed", zap.Error(err))
		}
		return err
	}
	if len(records) > 0 {
		log.Debug("Events appended",
			zap.Uint64("first_seq", records[0].Seq),
			zap.Int("count", len(records)))
	}
	return nil
}

// loadConfig returns the initialized GlobalConfig.
func (c *Controller) loadConfig(tx *ledger.Tx) (*curve.GlobalConfig, error) {
	cfg, err := tx.Config(c.configAddr)
	if err != nil {
		return nil, err
	}
	if !cfg.Initialized {
		return nil, curve.ErrNotInitialized
	}
	return cfg, nil
}

// Initialize creates the GlobalConfig and makes caller its authority.
func (c *Controller) Initialize(ctx context.Context, caller solana.PublicKey) error {
	log := c.logger.WithOperation(OpInitialize).With(zap.String("caller", caller.String()))

	err := c.update(ctx, OpInitialize, log, func(tx *ledger.Tx) error {
		cfg, err := tx.Config(c.configAddr)
		if err != nil {
			return err
		}
		if cfg.Initialized {
			return curve.ErrAlreadyInitialized
		}
		cfg.Initialized = true
		cfg.Authority = caller
		return tx.PutConfig(c.configAddr, cfg)
	})
	if err != nil {
		return err
	}

	log.Info("Protocol initialized", zap.String("config", c.configAddr.String()))
	return nil
}

// SetParams replaces every protocol parameter. Only the authority may call it.
func (c *Controller) SetParams(ctx context.Context, caller solana.PublicKey, params curve.Params) error {
	log := c.logger.WithOperation(OpSetParams).With(zap.String("caller", caller.String()))

	err := c.update(ctx, OpSetParams, log, func(tx *ledger.Tx) error {
		cfg, err := c.loadConfig(tx)
		if err != nil {
			return err
		}
		if !caller.Equals(cfg.Authority) {
			return curve.Errorf(curve.ErrNotAuthorized, "%s is not the config authority", caller)
		}
		if err := params.Validate(); err != nil {
			return err
		}

		cfg.Apply(params)
		if err := tx.PutConfig(c.configAddr, cfg); err != nil {
			return err
		}

		tx.Emit(&events.ParamsChangedEvent{
			BaseEvent:                         events.NewBase(events.ParamsChanged, tx.Now()),
			FeeRecipient:                      cfg.FeeRecipient,
			WithdrawAuthority:                 cfg.WithdrawAuthority,
			InitialVirtualTokenReserves:       cfg.InitialVirtualTokenReserves,
			InitialVirtualSolReserves:         cfg.InitialVirtualSolReserves,
			InitialRealTokenReserves:          cfg.InitialRealTokenReserves,
			TokenTotalSupply:                  cfg.TokenTotalSupply,
			FeeBasisPoints:                    cfg.FeeBasisPoints,
			MintFeeSol:                        cfg.MintFeeSol,
			TradingFeeCreatorBasisPoints:      cfg.TradingFeeCreatorBasisPoints,
			TokenShareCreatorBasisPoints:      cfg.TokenShareCreatorBasisPoints,
			SolShareFirstBuyerAfterGraduation: cfg.SolShareFirstBuyerAfterGraduation,
			SolShareProtocolAfterGraduation:   cfg.SolShareProtocolAfterGraduation,
		})
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("Protocol parameters updated",
		zap.String("fee_recipient", params.FeeRecipient.String()),
		zap.Uint16("fee_bps", params.FeeBasisPoints),
		zap.String("mint_fee", curve.FormatLamports(params.MintFeeSol)))
	return nil
}

// Create issues a new asset into a fresh curve's custody. The creator pays
// the mint fee to the fee recipient and deposits the custody reserve.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	log := c.logger.WithOperation(OpCreate).With(
		zap.String("creator", req.Creator.String()),
		zap.String("symbol", req.Symbol),
		zap.String("external_ref", req.ExternalRef))

	refAddr, err := curve.ExternalRefAddress(c.programID, req.ExternalRef)
	if err != nil {
		return nil, err
	}
	mint, err := c.assets.Allocate()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate mint: %w", err)
	}
	curveAddr, err := curve.BondingCurveAddress(c.programID, mint)
	if err != nil {
		return nil, err
	}

	err = c.update(ctx, OpCreate, log, func(tx *ledger.Tx) error {
		cfg, err := c.loadConfig(tx)
		if err != nil {
			return err
		}
		if !cfg.HasParams() {
			return curve.Errorf(curve.ErrNotInitialized, "protocol parameters have not been set")
		}

		used, err := tx.Exists(refAddr)
		if err != nil {
			return err
		}
		if used {
			return curve.Errorf(curve.ErrExternalRefAlreadyUsed, "external reference %q", req.ExternalRef)
		}
		if err := tx.Mark(refAddr); err != nil {
			return err
		}

		if err := tx.TransferLamports(req.Creator, cfg.FeeRecipient, cfg.MintFeeSol); err != nil {
			return fmt.Errorf("mint fee: %w", err)
		}
		if err := tx.TransferLamports(req.Creator, curveAddr, curve.CurveReserve()); err != nil {
			return fmt.Errorf("custody reserve: %w", err)
		}

		bc := curve.NewBondingCurve(mint, req.Creator, cfg)
		if err := tx.PutCurve(curveAddr, bc); err != nil {
			return err
		}
		if err := c.assets.Issue(tx, mint, curveAddr, cfg.TokenTotalSupply); err != nil {
			return err
		}
		if err := c.metadata.Publish(tx, &curve.Metadata{
			Mint:   mint,
			Name:   req.Name,
			Symbol: req.Symbol,
			URI:    req.URI,
		}); err != nil {
			return err
		}

		tx.Emit(&events.CreatedEvent{
			BaseEvent:    events.NewBase(events.Created, tx.Now()),
			Name:         req.Name,
			Symbol:       req.Symbol,
			URI:          req.URI,
			ExternalRef:  req.ExternalRef,
			Mint:         mint,
			BondingCurve: curveAddr,
			User:         req.Creator,
			DirectLaunch: req.DirectLaunch,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("Curve created",
		zap.String("mint", mint.String()),
		zap.String("bonding_curve", curveAddr.String()))
	return &CreateResult{Mint: mint, BondingCurve: curveAddr}, nil
}

// tradeContext loads and checks the records a trade needs.
func (c *Controller) tradeContext(tx *ledger.Tx, req TradeRequest) (*curve.GlobalConfig, *curve.BondingCurve, solana.PublicKey, error) {
	cfg, err := c.loadConfig(tx)
	if err != nil {
		return nil, nil, solana.PublicKey{}, err
	}
	if !req.FeeRecipient.Equals(cfg.FeeRecipient) {
		return nil, nil, solana.PublicKey{}, curve.Errorf(curve.ErrInvalidFeeRecipient, "got %s", req.FeeRecipient)
	}

	curveAddr, err := curve.BondingCurveAddress(c.programID, req.Mint)
	if err != nil {
		return nil, nil, solana.PublicKey{}, err
	}
	bc, err := tx.Curve(curveAddr)
	if err != nil {
		return nil, nil, solana.PublicKey{}, err
	}
	if !bc.Mint.Equals(req.Mint) {
		return nil, nil, solana.PublicKey{}, curve.Errorf(curve.ErrMintDoesNotMatchBondingCurve, "curve %s holds %s", curveAddr, bc.Mint)
	}
	if !req.Creator.Equals(bc.CreatorAddress) {
		return nil, nil, solana.PublicKey{}, curve.Errorf(curve.ErrInvalidCreator, "got %s", req.Creator)
	}
	if bc.Complete {
		return nil, nil, solana.PublicKey{}, curve.ErrBondingCurveComplete
	}
	return cfg, bc, curveAddr, nil
}

// Config returns the current GlobalConfig.
func (c *Controller) Config(ctx context.Context) (*curve.GlobalConfig, error) {
	var cfg *curve.GlobalConfig
	err := c.db.View(ctx, func(tx *ledger.Tx) error {
		var err error
		cfg, err = tx.Config(c.configAddr)
		return err
	})
	return cfg, err
}

// Curve returns the curve record of mint.
func (c *Controller) Curve(ctx context.Context, mint solana.PublicKey) (*curve.BondingCurve, error) {
	curveAddr, err := curve.BondingCurveAddress(c.programID, mint)
	if err != nil {
		return nil, err
	}
	var bc *curve.BondingCurve
	err = c.db.View(ctx, func(tx *ledger.Tx) error {
		var err error
		bc, err = tx.Curve(curveAddr)
		return err
	})
	return bc, err
}

// QuoteBuy prices a buy against the current state without executing it.
func (c *Controller) QuoteBuy(ctx context.Context, mint solana.PublicKey, amountOut uint64) (pricing.Quote, error) {
	bc, err := c.Curve(ctx, mint)
	if err != nil {
		return pricing.Quote{}, err
	}
	q, err := pricing.QuoteBuy(amountOut, bc)
	c.logger.Debug("Buy quoted",
		zap.String("mint", mint.String()),
		zap.Uint64("amount", amountOut),
		zap.Uint64("sol_amount", q.SolAmount),
		zap.Error(err))
	return q, err
}

// QuoteSell prices a sell against the current state without executing it.
func (c *Controller) QuoteSell(ctx context.Context, mint solana.PublicKey, amountIn uint64) (pricing.Quote, error) {
	bc, err := c.Curve(ctx, mint)
	if err != nil {
		return pricing.Quote{}, err
	}
	q, err := pricing.QuoteSell(amountIn, bc)
	c.logger.Debug("Sell quoted",
		zap.String("mint", mint.String()),
		zap.Uint64("amount", amountIn),
		zap.Uint64("sol_amount", q.SolAmount),
		zap.Error(err))
	return q, err
}

// Balance returns the lamports held by owner.
func (c *Controller) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var bal uint64
	err := c.db.View(ctx, func(tx *ledger.Tx) error {
		var err error
		bal, err = tx.Lamports(owner)
		return err
	})
	return bal, err
}

// TokenBalance returns the units of mint held by owner.
func (c *Controller) TokenBalance(ctx context.Context, mint, owner solana.PublicKey) (uint64, error) {
	var bal uint64
	err := c.db.View(ctx, func(tx *ledger.Tx) error {
		var err error
		bal, err = tx.TokenBalance(mint, owner)
		return err
	})
	return bal, err
}

// Events reads the audit log from sequence number from.
func (c *Controller) Events(from uint64, limit int) ([]events.Record, error) {
	return c.db.Events(from, limit)
}

// LastSeq is the sequence number of the newest audit log record.
func (c *Controller) LastSeq() uint64 {
	return c.db.LastSeq()
}
