package lifecycle

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/events"
	"github.com/rovshanmuradov/pumpcurve/internal/ledger"
	"go.uber.org/zap"
)

const (
	OpDeposit = "deposit"
	OpGenesis = "genesis"
)

// Allocation is a lamport balance credited by Genesis.
type Allocation struct {
	Owner    solana.PublicKey
	Lamports uint64
}

// Deposit credits amount lamports to owner from outside the ledger. Only the
// config authority may call it.
func (c *Controller) Deposit(ctx context.Context, caller, owner solana.PublicKey, amount uint64) error {
	log := c.logger.WithOperation(OpDeposit).With(
		zap.String("caller", caller.String()),
		zap.String("owner", owner.String()),
		zap.Uint64("amount", amount))

	err := c.update(ctx, OpDeposit, log, func(tx *ledger.Tx) error {
		if err := c.requireAuthority(tx, caller); err != nil {
			return err
		}
		return credit(tx, Allocation{Owner: owner, Lamports: amount}, false)
	})
	if err != nil {
		return err
	}

	log.Info("Deposit credited", zap.String("amount", curve.FormatLamports(amount)))
	return nil
}

// Genesis credits every allocation in one transaction. It succeeds at most
// once per ledger; later calls fail with ErrAlreadyInitialized.
func (c *Controller) Genesis(ctx context.Context, caller solana.PublicKey, allocs []Allocation) error {
	log := c.logger.WithOperation(OpGenesis).With(
		zap.String("caller", caller.String()),
		zap.Int("allocations", len(allocs)))

	marker, err := curve.GenesisAddress(c.programID)
	if err != nil {
		return err
	}

	err = c.update(ctx, OpGenesis, log, func(tx *ledger.Tx) error {
		if err := c.requireAuthority(tx, caller); err != nil {
			return err
		}
		applied, err := tx.Exists(marker)
		if err != nil {
			return err
		}
		if applied {
			return curve.Errorf(curve.ErrAlreadyInitialized, "genesis allocation already applied")
		}
		if err := tx.Mark(marker); err != nil {
			return err
		}

		for _, a := range allocs {
			if err := credit(tx, a, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("Genesis allocation applied")
	return nil
}

func (c *Controller) requireAuthority(tx *ledger.Tx, caller solana.PublicKey) error {
	cfg, err := c.loadConfig(tx)
	if err != nil {
		return err
	}
	if !caller.Equals(cfg.Authority) {
		return curve.Errorf(curve.ErrNotAuthorized, "%s is not the config authority", caller)
	}
	return nil
}

func credit(tx *ledger.Tx, a Allocation, genesis bool) error {
	if a.Owner.IsZero() {
		return curve.Errorf(curve.ErrInvalidParams, "deposit to the zero address")
	}
	if a.Lamports == 0 {
		return curve.Errorf(curve.ErrInvalidParams, "zero deposit to %s", a.Owner)
	}
	if err := tx.CreditLamports(a.Owner, a.Lamports); err != nil {
		return err
	}
	tx.Emit(&events.DepositEvent{
		BaseEvent: events.NewBase(events.Deposited, tx.Now()),
		Owner:     a.Owner,
		Amount:    a.Lamports,
		Genesis:   genesis,
	})
	return nil
}
