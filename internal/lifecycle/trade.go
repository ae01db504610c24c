package lifecycle

import (
	"context"

	smath "github.com/ava-labs/avalanchego/utils/math"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/events"
	"github.com/rovshanmuradov/pumpcurve/internal/fees"
	"github.com/rovshanmuradov/pumpcurve/internal/ledger"
	"github.com/rovshanmuradov/pumpcurve/internal/pricing"
	"go.uber.org/zap"
)

func tradeLogger(base *zap.Logger, req TradeRequest) *zap.Logger {
	fields := []zap.Field{
		zap.String("user", req.User.String()),
		zap.String("mint", req.Mint.String()),
		zap.Uint64("amount", req.Amount),
	}
	if req.Slippage != nil {
		fields = append(fields,
			zap.Uint64("expected", req.Expected),
			zap.String("slippage_type", string(req.Slippage.Type)),
			zap.Uint64("slippage_value", req.Slippage.Value))
	} else {
		fields = append(fields, zap.Uint64("limit", req.Limit))
	}
	return base.With(fields...)
}

// Buy purchases req.Amount tokens for at most the request's limit in
// lamports. Fees are paid on top of the cost. Selling the last real token
// completes the curve.
func (c *Controller) Buy(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	log := tradeLogger(c.logger.WithOperation(OpBuy), req)

	var res TradeResult
	err := c.update(ctx, OpBuy, log, func(tx *ledger.Tx) error {
		cfg, bc, curveAddr, err := c.tradeContext(tx, req)
		if err != nil {
			return err
		}

		limit, err := req.buyLimit()
		if err != nil {
			return err
		}
		q, err := pricing.QuoteBuy(req.Amount, bc)
		if err != nil {
			return err
		}
		if q.SolAmount > limit {
			return curve.Errorf(curve.ErrTooMuchSolRequired, "cost %d exceeds limit %d", q.SolAmount, limit)
		}

		tradeFees, err := fees.ComputeTradeFees(q.SolAmount, cfg)
		if err != nil {
			return err
		}
		if err := fees.ChargeTradeFees(tx, req.User, cfg.FeeRecipient, bc.CreatorAddress, tradeFees); err != nil {
			return err
		}
		if err := tx.TransferLamports(req.User, curveAddr, q.SolAmount); err != nil {
			return err
		}
		if err := tx.TransferTokens(req.Mint, curveAddr, req.User, req.Amount); err != nil {
			return err
		}

		realToken, err := smath.Sub(bc.RealTokenReserves, req.Amount)
		if err != nil {
			return curve.Errorf(curve.ErrInsufficientTokens, "requested %d, available %d", req.Amount, bc.RealTokenReserves)
		}
		realSol, err := smath.Add(bc.RealSolReserves, q.SolAmount)
		if err != nil {
			return curve.Errorf(curve.ErrArithmeticOverflow, "real sol reserves %d + %d", bc.RealSolReserves, q.SolAmount)
		}

		bc.VirtualTokenReserves = q.NewVirtualTokenReserves
		bc.VirtualSolReserves = q.NewVirtualSolReserves
		bc.RealTokenReserves = realToken
		bc.RealSolReserves = realSol
		if !bc.HasFirstBuyer() {
			bc.FirstBuyerAddress = req.User
		}

		completed := false
		if bc.RealTokenReserves == 0 {
			bc.Complete = true
			completed = true
			tx.Emit(&events.CompleteEvent{
				BaseEvent:    events.NewBase(events.Completed, tx.Now()),
				Mint:         req.Mint,
				BondingCurve: curveAddr,
			})
		}
		if err := tx.PutCurve(curveAddr, bc); err != nil {
			return err
		}

		tx.Emit(&events.TradeEvent{
			BaseEvent:            events.NewBase(events.Traded, tx.Now()),
			Mint:                 req.Mint,
			SolAmount:            q.SolAmount,
			TokenAmount:          req.Amount,
			IsBuy:                true,
			User:                 req.User,
			VirtualSolReserves:   bc.VirtualSolReserves,
			VirtualTokenReserves: bc.VirtualTokenReserves,
		})

		res = TradeResult{
			SolAmount:     q.SolAmount,
			TokenAmount:   req.Amount,
			PricePerToken: q.PricePerToken,
			Fees:          tradeFees,
			Completed:     completed,
			Curve:         *bc,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("Buy executed",
		zap.String("cost", curve.FormatLamports(res.SolAmount)),
		zap.String("tokens", curve.FormatTokens(res.TokenAmount)),
		zap.Uint64("platform_fee", res.Fees.Platform),
		zap.Uint64("creator_fee", res.Fees.Creator),
		zap.Bool("completed", res.Completed))
	return &res, nil
}

// Sell returns req.Amount tokens to the curve for at least the request's
// limit in lamports. Fees are paid by the seller on top.
func (c *Controller) Sell(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	log := tradeLogger(c.logger.WithOperation(OpSell), req)

	var res TradeResult
	err := c.update(ctx, OpSell, log, func(tx *ledger.Tx) error {
		cfg, bc, curveAddr, err := c.tradeContext(tx, req)
		if err != nil {
			return err
		}

		limit, err := req.sellLimit()
		if err != nil {
			return err
		}
		q, err := pricing.QuoteSell(req.Amount, bc)
		if err != nil {
			return err
		}
		if q.SolAmount < limit {
			return curve.Errorf(curve.ErrTooLittleSolReceived, "output %d below minimum %d", q.SolAmount, limit)
		}

		tradeFees, err := fees.ComputeTradeFees(q.SolAmount, cfg)
		if err != nil {
			return err
		}
		if err := fees.ChargeTradeFees(tx, req.User, cfg.FeeRecipient, bc.CreatorAddress, tradeFees); err != nil {
			return err
		}
		if err := tx.TransferTokens(req.Mint, req.User, curveAddr, req.Amount); err != nil {
			return err
		}

		realToken, err := smath.Add(bc.RealTokenReserves, req.Amount)
		if err != nil {
			return curve.Errorf(curve.ErrArithmeticOverflow, "real token reserves %d + %d", bc.RealTokenReserves, req.Amount)
		}
		realSol, err := smath.Sub(bc.RealSolReserves, q.SolAmount)
		if err != nil {
			return curve.Errorf(curve.ErrInsufficientFunds, "real sol reserves %d < %d", bc.RealSolReserves, q.SolAmount)
		}
		if err := tx.TransferLamports(curveAddr, req.User, q.SolAmount); err != nil {
			return err
		}

		bc.VirtualTokenReserves = q.NewVirtualTokenReserves
		bc.VirtualSolReserves = q.NewVirtualSolReserves
		bc.RealTokenReserves = realToken
		bc.RealSolReserves = realSol
		if err := tx.PutCurve(curveAddr, bc); err != nil {
			return err
		}

		tx.Emit(&events.TradeEvent{
			BaseEvent:            events.NewBase(events.Traded, tx.Now()),
			Mint:                 req.Mint,
			SolAmount:            q.SolAmount,
			TokenAmount:          req.Amount,
			IsBuy:                false,
			User:                 req.User,
			VirtualSolReserves:   bc.VirtualSolReserves,
			VirtualTokenReserves: bc.VirtualTokenReserves,
		})

		res = TradeResult{
			SolAmount:     q.SolAmount,
			TokenAmount:   req.Amount,
			PricePerToken: q.PricePerToken,
			Fees:          tradeFees,
			Curve:         *bc,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("Sell executed",
		zap.String("output", curve.FormatLamports(res.SolAmount)),
		zap.String("tokens", curve.FormatTokens(res.TokenAmount)),
		zap.Uint64("platform_fee", res.Fees.Platform),
		zap.Uint64("creator_fee", res.Fees.Creator))
	return &res, nil
}

// Withdraw pays out a graduated curve's custody: token shares to the creator
// and caller, the fixed first-buyer and protocol shares, and the remainder
// to the caller. The custody keeps its reserve.
func (c *Controller) Withdraw(ctx context.Context, req WithdrawRequest) (*WithdrawResult, error) {
	log := c.logger.WithOperation(OpWithdraw).With(
		zap.String("caller", req.Caller.String()),
		zap.String("mint", req.Mint.String()))

	var res WithdrawResult
	err := c.update(ctx, OpWithdraw, log, func(tx *ledger.Tx) error {
		cfg, err := c.loadConfig(tx)
		if err != nil {
			return err
		}
		if !req.Caller.Equals(cfg.WithdrawAuthority) {
			return curve.Errorf(curve.ErrNotAuthorized, "%s is not the withdraw authority", req.Caller)
		}
		if !req.FeeRecipient.Equals(cfg.FeeRecipient) {
			return curve.Errorf(curve.ErrInvalidFeeRecipient, "got %s", req.FeeRecipient)
		}

		curveAddr, err := curve.BondingCurveAddress(c.programID, req.Mint)
		if err != nil {
			return err
		}
		bc, err := tx.Curve(curveAddr)
		if err != nil {
			return err
		}
		if !req.Creator.Equals(bc.CreatorAddress) {
			return curve.Errorf(curve.ErrInvalidCreator, "got %s", req.Creator)
		}
		if !req.FirstBuyer.Equals(bc.FirstBuyerAddress) {
			return curve.Errorf(curve.ErrInvalidFirstBuyer, "got %s", req.FirstBuyer)
		}
		if c.withdrawRequiresComplete && !bc.Complete {
			return curve.ErrBondingCurveNotComplete
		}

		tokenBalance, err := tx.TokenBalance(req.Mint, curveAddr)
		if err != nil {
			return err
		}
		custody, err := tx.Lamports(curveAddr)
		if err != nil {
			return err
		}
		plan, err := fees.PlanWithdrawal(tokenBalance, custody, curve.CurveReserve(), cfg)
		if err != nil {
			return err
		}

		parties := fees.Parties{
			Mint:         req.Mint,
			Custody:      curveAddr,
			Creator:      bc.CreatorAddress,
			Caller:       req.Caller,
			FirstBuyer:   bc.FirstBuyerAddress,
			FeeRecipient: cfg.FeeRecipient,
		}
		if err := fees.PayGraduation(tx, parties, plan); err != nil {
			return err
		}

		bc.RealSolReserves = 0
		bc.RealTokenReserves = 0
		if err := tx.PutCurve(curveAddr, bc); err != nil {
			return err
		}

		tx.Emit(&events.WithdrawEvent{
			BaseEvent:   events.NewBase(events.Withdrawn, tx.Now()),
			Mint:        req.Mint,
			SolAmount:   plan.AdminSol,
			TokenAmount: plan.CallerTokens,
		})

		res = WithdrawResult{Plan: plan, Curve: *bc}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("Curve withdrawn",
		zap.String("admin_sol", curve.FormatLamports(res.Plan.AdminSol)),
		zap.String("admin_tokens", curve.FormatTokens(res.Plan.CallerTokens)),
		zap.String("creator_tokens", curve.FormatTokens(res.Plan.CreatorTokens)))
	return &res, nil
}
