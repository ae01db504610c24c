package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/events"
	"github.com/rovshanmuradov/pumpcurve/internal/ledger"
	"github.com/rovshanmuradov/pumpcurve/internal/pricing"
	"github.com/rovshanmuradov/pumpcurve/internal/utils/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

const (
	initialVirtualTokens uint64 = 1_073_000_000_000000
	initialVirtualSol    uint64 = 30_000_000000
	initialRealTokens    uint64 = 793_100_000_000000
	totalSupply          uint64 = 1_000_000_000_000000
	mintFee              uint64 = 20_000_000
	firstBuyerShare      uint64 = 100_000_000
	protocolShare        uint64 = 200_000_000

	// Cost of draining a fresh curve, see pricing tests.
	drainCost uint64 = 850_053_591
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	t   *testing.T
	ctx context.Context

	db      *ledger.DB
	ctrl    *Controller
	metrics *metrics.Collector

	program           solana.PublicKey
	authority         solana.PublicKey
	withdrawAuthority solana.PublicKey
	feeRecipient      solana.PublicKey
	creator           solana.PublicKey
}

func newHarness(t *testing.T, requireComplete bool) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := ledger.NewDB(ledger.NewMemStore(), logger,
		ledger.WithClock(func() time.Time { return fixedNow }),
		ledger.WithMaxAttempts(1000))
	require.NoError(t, err)

	h := &harness{
		t:                 t,
		ctx:               context.Background(),
		db:                db,
		metrics:           metrics.NewCollector(prometheus.NewRegistry()),
		program:           solana.NewWallet().PublicKey(),
		authority:         solana.NewWallet().PublicKey(),
		withdrawAuthority: solana.NewWallet().PublicKey(),
		feeRecipient:      solana.NewWallet().PublicKey(),
		creator:           solana.NewWallet().PublicKey(),
	}

	h.ctrl, err = NewController(ControllerConfig{
		ProgramID:                h.program,
		DB:                       db,
		Metrics:                  h.metrics,
		Logger:                   logger,
		WithdrawRequiresComplete: requireComplete,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) params() curve.Params {
	return curve.Params{
		WithdrawAuthority:                 h.withdrawAuthority,
		FeeRecipient:                      h.feeRecipient,
		InitialVirtualTokenReserves:       initialVirtualTokens,
		InitialVirtualSolReserves:         initialVirtualSol,
		InitialRealTokenReserves:          initialRealTokens,
		TokenTotalSupply:                  totalSupply,
		FeeBasisPoints:                    100,
		MintFeeSol:                        mintFee,
		TradingFeeCreatorBasisPoints:      50,
		TokenShareCreatorBasisPoints:      1000,
		SolShareFirstBuyerAfterGraduation: firstBuyerShare,
		SolShareProtocolAfterGraduation:   protocolShare,
	}
}

// bootstrap initializes the protocol and funds the creator.
func (h *harness) bootstrap() {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Initialize(h.ctx, h.authority))
	require.NoError(h.t, h.ctrl.SetParams(h.ctx, h.authority, h.params()))
	h.fund(h.creator, 10*curve.CurveReserve()+10*mintFee)
}

func (h *harness) fund(owner solana.PublicKey, amount uint64) {
	h.t.Helper()
	_, err := h.db.Update(h.ctx, func(tx *ledger.Tx) error {
		return tx.CreditLamports(owner, amount)
	})
	require.NoError(h.t, err)
}

func (h *harness) balance(owner solana.PublicKey) uint64 {
	h.t.Helper()
	bal, err := h.ctrl.Balance(h.ctx, owner)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) tokens(mint, owner solana.PublicKey) uint64 {
	h.t.Helper()
	bal, err := h.ctrl.TokenBalance(h.ctx, mint, owner)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) create(ref string) *CreateResult {
	h.t.Helper()
	res, err := h.ctrl.Create(h.ctx, CreateRequest{
		Creator:     h.creator,
		Name:        "Pump",
		Symbol:      "PMP",
		URI:         "https://example.com/pmp.json",
		ExternalRef: ref,
	})
	require.NoError(h.t, err)
	return res
}

func (h *harness) buyRequest(user, mint solana.PublicKey, amount, limit uint64) TradeRequest {
	return TradeRequest{
		User:         user,
		Mint:         mint,
		Amount:       amount,
		Limit:        limit,
		FeeRecipient: h.feeRecipient,
		Creator:      h.creator,
	}
}

func (h *harness) newTrader(lamports uint64) solana.PublicKey {
	user := solana.NewWallet().PublicKey()
	h.fund(user, lamports)
	return user
}

func (h *harness) events(from uint64) []events.Record {
	h.t.Helper()
	records, err := h.ctrl.Events(from, 0)
	require.NoError(h.t, err)
	return records
}

func (h *harness) withdrawRequest(mint, firstBuyer solana.PublicKey) WithdrawRequest {
	return WithdrawRequest{
		Caller:       h.withdrawAuthority,
		Mint:         mint,
		FeeRecipient: h.feeRecipient,
		Creator:      h.creator,
		FirstBuyer:   firstBuyer,
	}
}

func TestInitialize(t *testing.T) {
	h := newHarness(t, true)

	cfg, err := h.ctrl.Config(h.ctx)
	require.NoError(t, err)
	assert.False(t, cfg.Initialized)

	require.NoError(t, h.ctrl.Initialize(h.ctx, h.authority))
	err = h.ctrl.Initialize(h.ctx, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, curve.ErrAlreadyInitialized)

	cfg, err = h.ctrl.Config(h.ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Initialized)
	assert.Equal(t, h.authority, cfg.Authority)
	assert.False(t, cfg.HasParams())
}

func TestSetParams(t *testing.T) {
	h := newHarness(t, true)

	err := h.ctrl.SetParams(h.ctx, h.authority, h.params())
	assert.ErrorIs(t, err, curve.ErrNotInitialized)

	require.NoError(t, h.ctrl.Initialize(h.ctx, h.authority))
	require.NoError(t, h.ctrl.SetParams(h.ctx, h.authority, h.params()))
	before, err := h.ctrl.Config(h.ctx)
	require.NoError(t, err)

	changed := h.params()
	changed.FeeBasisPoints = 500
	err = h.ctrl.SetParams(h.ctx, solana.NewWallet().PublicKey(), changed)
	assert.ErrorIs(t, err, curve.ErrNotAuthorized)

	invalid := h.params()
	invalid.InitialRealTokenReserves = invalid.InitialVirtualTokenReserves
	err = h.ctrl.SetParams(h.ctx, h.authority, invalid)
	assert.ErrorIs(t, err, curve.ErrInvalidParams)

	after, err := h.ctrl.Config(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, uint16(100), after.FeeBasisPoints)
	assert.Equal(t, h.feeRecipient, after.FeeRecipient)

	records := h.events(0)
	require.Len(t, records, 1)
	ev, ok := records[0].Event.(*events.ParamsChangedEvent)
	require.True(t, ok)
	assert.Equal(t, h.withdrawAuthority, ev.WithdrawAuthority)
	assert.Equal(t, mintFee, ev.MintFeeSol)
	assert.Equal(t, protocolShare, ev.SolShareProtocolAfterGraduation)
}

func TestCreate(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.Create(h.ctx, CreateRequest{Creator: h.creator, ExternalRef: "post-1"})
	assert.ErrorIs(t, err, curve.ErrNotInitialized)

	require.NoError(t, h.ctrl.Initialize(h.ctx, h.authority))
	_, err = h.ctrl.Create(h.ctx, CreateRequest{Creator: h.creator, ExternalRef: "post-1"})
	assert.ErrorIs(t, err, curve.ErrNotInitialized, "params not set")

	require.NoError(t, h.ctrl.SetParams(h.ctx, h.authority, h.params()))
	h.fund(h.creator, 10*curve.CurveReserve()+10*mintFee)
	creatorBefore := h.balance(h.creator)

	res := h.create("post-1")

	assert.Equal(t, creatorBefore-mintFee-curve.CurveReserve(), h.balance(h.creator))
	assert.Equal(t, mintFee, h.balance(h.feeRecipient))
	assert.Equal(t, curve.CurveReserve(), h.balance(res.BondingCurve))
	assert.Equal(t, totalSupply, h.tokens(res.Mint, res.BondingCurve))

	expectedAddr, err := curve.BondingCurveAddress(h.program, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, expectedAddr, res.BondingCurve)

	bc, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, &curve.BondingCurve{
		Mint:                 res.Mint,
		VirtualTokenReserves: initialVirtualTokens,
		VirtualSolReserves:   initialVirtualSol,
		RealTokenReserves:    initialRealTokens,
		RealSolReserves:      0,
		TokenTotalSupply:     totalSupply,
		Complete:             false,
		CreatorAddress:       h.creator,
	}, bc)

	require.NoError(t, h.db.View(h.ctx, func(tx *ledger.Tx) error {
		asset, ok, err := tx.Asset(res.Mint)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, asset.IssuanceDisabled)
		assert.Equal(t, totalSupply, asset.Supply)

		md, ok, err := tx.Metadata(res.Mint)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "PMP", md.Symbol)
		assert.False(t, md.IsMutable)
		return nil
	}))

	records := h.events(0)
	require.Len(t, records, 2)
	created, ok := records[1].Event.(*events.CreatedEvent)
	require.True(t, ok)
	assert.Equal(t, &events.CreatedEvent{
		BaseEvent:    events.NewBase(events.Created, fixedNow),
		Name:         "Pump",
		Symbol:       "PMP",
		URI:          "https://example.com/pmp.json",
		ExternalRef:  "post-1",
		Mint:         res.Mint,
		BondingCurve: res.BondingCurve,
		User:         h.creator,
	}, created)
}

func TestCreateRejectsReusedExternalRef(t *testing.T) {
	h := newHarness(t, true)
	h.bootstrap()
	h.create("post-1")
	creatorBefore := h.balance(h.creator)

	_, err := h.ctrl.Create(h.ctx, CreateRequest{Creator: h.creator, ExternalRef: "post-1"})
	assert.ErrorIs(t, err, curve.ErrExternalRefAlreadyUsed)
	assert.Equal(t, creatorBefore, h.balance(h.creator))
}

func TestCreateWithoutFundsLeavesNoTrace(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.ctrl.Initialize(h.ctx, h.authority))
	require.NoError(t, h.ctrl.SetParams(h.ctx, h.authority, h.params()))
	h.fund(h.creator, mintFee)

	_, err := h.ctrl.Create(h.ctx, CreateRequest{Creator: h.creator, ExternalRef: "post-1"})
	assert.ErrorIs(t, err, curve.ErrInsufficientFunds)
	assert.Equal(t, mintFee, h.balance(h.creator))
	assert.Zero(t, h.balance(h.feeRecipient))

	// The reference was not consumed by the failed attempt.
	h.fund(h.creator, curve.CurveReserve())
	h.create("post-1")
}

func TestBuy(t *testing.T) {
	h := newHarness(t, true)
	h.bootstrap()
	res := h.create("post-1")
	buyer := h.newTrader(1_000_000)
	seq := h.events(0)[len(h.events(0))-1].Seq

	_, err := h.ctrl.Buy(h.ctx, h.buyRequest(buyer, res.Mint, 1_000_000000, 279))
	assert.ErrorIs(t, err, curve.ErrTooMuchSolRequired)
	assert.Equal(t, uint64(1_000_000), h.balance(buyer))

	trade, err := h.ctrl.Buy(h.ctx, h.buyRequest(buyer, res.Mint, 1_000_000000, 280))
	require.NoError(t, err)
	assert.Equal(t, uint64(280), trade.SolAmount)
	assert.Equal(t, uint64(2), trade.Fees.Platform)
	assert.Equal(t, uint64(1), trade.Fees.Creator)
	assert.False(t, trade.Completed)

	assert.Equal(t, uint64(1_000_000-280-2-1), h.balance(buyer))
	assert.Equal(t, mintFee+2, h.balance(h.feeRecipient))
	assert.Equal(t, curve.CurveReserve()+280, h.balance(res.BondingCurve))
	assert.Equal(t, uint64(1_000_000000), h.tokens(res.Mint, buyer))

	bc, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, initialVirtualTokens-1_000_000000, bc.VirtualTokenReserves)
	assert.Equal(t, uint64(30_000_027_959), bc.VirtualSolReserves)
	assert.Equal(t, initialRealTokens-1_000_000000, bc.RealTokenReserves)
	assert.Equal(t, uint64(280), bc.RealSolReserves)
	assert.Equal(t, buyer, bc.FirstBuyerAddress)

	// A second buyer does not replace the first.
	other := h.newTrader(1_000_000)
	_, err = h.ctrl.Buy(h.ctx, h.buyRequest(other, res.Mint, 1_000_000000, 1_000))
	require.NoError(t, err)
	bc, err = h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, buyer, bc.FirstBuyerAddress)

	records := h.events(seq + 1)
	require.Len(t, records, 2)
	ev, ok := records[0].Event.(*events.TradeEvent)
	require.True(t, ok)
	assert.Equal(t, &events.TradeEvent{
		BaseEvent:            events.NewBase(events.Traded, fixedNow),
		Mint:                 res.Mint,
		SolAmount:            280,
		TokenAmount:          1_000_000000,
		IsBuy:                true,
		User:                 buyer,
		VirtualSolReserves:   30_000_027_959,
		VirtualTokenReserves: initialVirtualTokens - 1_000_000000,
	}, ev)
}

func TestBuyWithoutFundsIsAtomic(t *testing.T) {
	h := newHarness(t, true)
	h.bootstrap()
	res := h.create("post-1")

	// Enough for the fees but not the cost.
	buyer := h.newTrader(100)
	_, err := h.ctrl.Buy(h.ctx, h.buyRequest(buyer, res.Mint, 1_000_000000, 1_000))
	assert.ErrorIs(t, err, curve.ErrInsufficientFunds)

	assert.Equal(t, uint64(100), h.balance(buyer))
	assert.Equal(t, mintFee, h.balance(h.feeRecipient))
	bc, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, initialRealTokens, bc.RealTokenReserves)
	assert.True(t, bc.FirstBuyerAddress.IsZero())
}

func TestBuyExactDrainCompletes(t *testing.T) {
	h := newHarness(t, true)
	h.bootstrap()
	res := h.create("post-1")
	buyer := h.newTrader(2 * drainCost)

	_, err := h.ctrl.Buy(h.ctx, h.buyRequest(buyer, res.Mint, initialRealTokens+1, 2*drainCost))
	assert.ErrorIs(t, err, curve.ErrInsufficientTokens)
	assert.Equal(t, 2*drainCost, h.balance(buyer))

	seq := h.events(0)[len(h.events(0))-1].Seq
	trade, err := h.ctrl.Buy(h.ctx, h.buyRequest(buyer, res.Mint, initialRealTokens, drainCost))
	require.NoError(t, err)
	assert.Equal(t, drainCost, trade.SolAmount)
	assert.Equal(t, uint64(1), trade.PricePerToken)
	assert.True(t, trade.Completed)
	assert.True(t, trade.Curve.Complete)
	assert.Zero(t, trade.Curve.RealTokenReserves)

	records := h.events(seq + 1)
	require.Len(t, records, 2)
	assert.Equal(t, events.Completed, records[0].Event.Type())
	assert.Equal(t, events.Traded, records[1].Event.Type())

	_, err = h.ctrl.Buy(h.ctx, h.buyRequest(buyer, res.Mint, 1, drainCost))
	assert.ErrorIs(t, err, curve.ErrBondingCurveComplete)
	_, err = h.ctrl.Sell(h.ctx, h.buyRequest(buyer, res.Mint, 1_000_000, 0))
	assert.ErrorIs(t, err, curve.ErrBondingCurveComplete)
}

func TestSell(t *testing.T) {
	h := newHarness(t, true)
	h.bootstrap()
	res := h.create("post-1")
	seller := h.newTrader(1_000_000)

	_, err := h.ctrl.Buy(h.ctx, h.buyRequest(seller, res.Mint, 1_000_000000, 280))
	require.NoError(t, err)
	afterBuy := h.balance(seller)

	_, err = h.ctrl.Sell(h.ctx, h.buyRequest(seller, res.Mint, 1_000_000000, 280))
	assert.ErrorIs(t, err, curve.ErrTooLittleSolReceived)

	_, err = h.ctrl.Sell(h.ctx, h.buyRequest(seller, res.Mint, 2_000_000000, 0))
	assert.ErrorIs(t, err, curve.ErrInsufficientFunds)

	trade, err := h.ctrl.Sell(h.ctx, h.buyRequest(seller, res.Mint, 1_000_000000, 279))
	require.NoError(t, err)
	assert.Equal(t, uint64(279), trade.SolAmount)

	assert.Equal(t, afterBuy+279-2-1, h.balance(seller))
	assert.Zero(t, h.tokens(res.Mint, seller))
	// The round trip leaves the pool one lamport ahead.
	assert.Equal(t, curve.CurveReserve()+1, h.balance(res.BondingCurve))

	bc, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, initialVirtualTokens, bc.VirtualTokenReserves)
	assert.Equal(t, uint64(29_999_999_999), bc.VirtualSolReserves)
	assert.Equal(t, initialRealTokens, bc.RealTokenReserves)
	assert.Equal(t, uint64(1), bc.RealSolReserves)

	records := h.events(0)
	last, ok := records[len(records)-1].Event.(*events.TradeEvent)
	require.True(t, ok)
	assert.False(t, last.IsBuy)
	assert.Equal(t, uint64(279), last.SolAmount)
}

func TestTradeSlippagePolicies(t *testing.T) {
	h := newHarness(t, true)
	h.bootstrap()
	res := h.create("post-1")
	trader := h.newTrader(1_000_000)

	withSlippage := func(amount, expected uint64, cfg pricing.SlippageConfig) TradeRequest {
		req := h.buyRequest(trader, res.Mint, amount, 0)
		req.Expected = expected
		req.Slippage = &cfg
		return req
	}

	q, err := h.ctrl.QuoteBuy(h.ctx, res.Mint, 1_000_000000)
	require.NoError(t, err)
	require.Equal(t, uint64(280), q.SolAmount)

	// A stale quote with zero tolerance is rejected, and Limit is ignored.
	_, err = h.ctrl.Buy(h.ctx, withSlippage(1_000_000000, 279, pricing.SlippageConfig{Type: pricing.SlippageBasisPoints}))
	assert.ErrorIs(t, err, curve.ErrTooMuchSolRequired)

	_, err = h.ctrl.Buy(h.ctx, withSlippage(1_000_000000, 279, pricing.SlippageConfig{Type: pricing.SlippageBasisPoints, Value: 100}))
	require.NoError(t, err)

	_, err = h.ctrl.Buy(h.ctx, withSlippage(1_000_000000, 0, pricing.SlippageConfig{Type: "percent"}))
	assert.ErrorIs(t, err, curve.ErrInvalidParams)
	assert.Equal(t, uint64(1_000_000000), h.tokens(res.Mint, trader))

	_, err = h.ctrl.Sell(h.ctx, withSlippage(1_000_000000, 300, pricing.SlippageConfig{Type: pricing.SlippageBasisPoints, Value: 100}))
	assert.ErrorIs(t, err, curve.ErrTooLittleSolReceived)

	_, err = h.ctrl.Sell(h.ctx, withSlippage(1_000_000000, 300, pricing.SlippageConfig{Type: pricing.SlippageBasisPoints, Value: 20_000}))
	assert.ErrorIs(t, err, curve.ErrInvalidParams)

	trade, err := h.ctrl.Sell(h.ctx, withSlippage(1_000_000000, 0, pricing.SlippageConfig{Type: pricing.SlippageNone}))
	require.NoError(t, err)
	assert.Positive(t, trade.SolAmount)
	assert.Zero(t, h.tokens(res.Mint, trader))
}

func TestTradeIdentityChecks(t *testing.T) {
	h := newHarness(t, true)
	h.bootstrap()
	res := h.create("post-1")
	buyer := h.newTrader(1_000_000)

	req := h.buyRequest(buyer, res.Mint, 1_000_000000, 1_000)
	req.FeeRecipient = solana.NewWallet().PublicKey()
	_, err := h.ctrl.Buy(h.ctx, req)
	assert.ErrorIs(t, err, curve.ErrInvalidFeeRecipient)

	req = h.buyRequest(buyer, res.Mint, 1_000_000000, 1_000)
	req.Creator = solana.NewWallet().PublicKey()
	_, err = h.ctrl.Buy(h.ctx, req)
	assert.ErrorIs(t, err, curve.ErrInvalidCreator)

	_, err = h.ctrl.Sell(h.ctx, h.buyRequest(buyer, solana.NewWallet().PublicKey(), 1, 0))
	assert.ErrorIs(t, err, curve.ErrBondingCurveNotFound)

	code, ok := curve.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, curve.CodeBondingCurveNotFound, code)
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t, true)
	h.bootstrap()
	res := h.create("post-1")
	buyer := h.newTrader(2 * drainCost)

	_, err := h.ctrl.Withdraw(h.ctx, h.withdrawRequest(res.Mint, solana.PublicKey{}))
	assert.ErrorIs(t, err, curve.ErrBondingCurveNotComplete)

	_, err = h.ctrl.Buy(h.ctx, h.buyRequest(buyer, res.Mint, initialRealTokens, drainCost))
	require.NoError(t, err)
	feeRecipientBefore := h.balance(h.feeRecipient)

	req := h.withdrawRequest(res.Mint, buyer)
	req.Caller = h.authority
	_, err = h.ctrl.Withdraw(h.ctx, req)
	assert.ErrorIs(t, err, curve.ErrNotAuthorized)

	req = h.withdrawRequest(res.Mint, h.creator)
	_, err = h.ctrl.Withdraw(h.ctx, req)
	assert.ErrorIs(t, err, curve.ErrInvalidFirstBuyer)

	out, err := h.ctrl.Withdraw(h.ctx, h.withdrawRequest(res.Mint, buyer))
	require.NoError(t, err)
	assert.Equal(t, uint64(550_043_591), out.Plan.AdminSol)

	remainingTokens := totalSupply - initialRealTokens
	assert.Equal(t, remainingTokens/10, h.tokens(res.Mint, h.creator))
	assert.Equal(t, remainingTokens-remainingTokens/10, h.tokens(res.Mint, h.withdrawAuthority))
	assert.Zero(t, h.tokens(res.Mint, res.BondingCurve))

	buyerAfterBuy := 2*drainCost - drainCost - 8_500_535 - 4_250_267
	assert.Equal(t, buyerAfterBuy+firstBuyerShare, h.balance(buyer))
	assert.Equal(t, feeRecipientBefore+protocolShare, h.balance(h.feeRecipient))
	assert.Equal(t, uint64(550_043_591), h.balance(h.withdrawAuthority))
	assert.Equal(t, curve.CurveReserve()+curve.WithdrawSafetyMargin, h.balance(res.BondingCurve))

	bc, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)
	assert.True(t, bc.Complete)
	assert.Zero(t, bc.RealSolReserves)
	assert.Zero(t, bc.RealTokenReserves)

	records := h.events(0)
	ev, ok := records[len(records)-1].Event.(*events.WithdrawEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(550_043_591), ev.SolAmount)
	assert.Equal(t, remainingTokens-remainingTokens/10, ev.TokenAmount)

	// Only the reserve is left.
	_, err = h.ctrl.Withdraw(h.ctx, h.withdrawRequest(res.Mint, buyer))
	assert.ErrorIs(t, err, curve.ErrInsufficientFunds)
}

func TestWithdrawUngatedRejectsEmptyCustody(t *testing.T) {
	h := newHarness(t, false)
	h.bootstrap()
	res := h.create("post-1")
	buyer := h.newTrader(1_000_000)

	_, err := h.ctrl.Buy(h.ctx, h.buyRequest(buyer, res.Mint, 1_000_000000, 280))
	require.NoError(t, err)
	before, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)

	_, err = h.ctrl.Withdraw(h.ctx, h.withdrawRequest(res.Mint, buyer))
	assert.ErrorIs(t, err, curve.ErrInsufficientFunds)

	after, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSellAfterUngatedWithdrawIsAtomic(t *testing.T) {
	h := newHarness(t, false)
	h.bootstrap()
	res := h.create("post-1")
	trader := h.newTrader(2 * drainCost)

	bought, err := h.ctrl.Buy(h.ctx, h.buyRequest(trader, res.Mint, 700_000_000_000000, drainCost))
	require.NoError(t, err)
	require.Equal(t, uint64(563_002_681), bought.SolAmount)
	require.False(t, bought.Completed)

	out, err := h.ctrl.Withdraw(h.ctx, h.withdrawRequest(res.Mint, trader))
	require.NoError(t, err)
	assert.Equal(t, uint64(262_992_681), out.Plan.AdminSol)
	assert.False(t, out.Curve.Complete)
	assert.Zero(t, out.Curve.RealSolReserves)

	lamportsBefore := h.balance(trader)
	tokensBefore := h.tokens(res.Mint, trader)
	custodyBefore := h.balance(res.BondingCurve)
	feesBefore := h.balance(h.feeRecipient)
	curveBefore, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)

	q, err := h.ctrl.QuoteSell(h.ctx, res.Mint, 1_000_000_000000)
	require.NoError(t, err)
	require.Positive(t, q.SolAmount)

	_, err = h.ctrl.Sell(h.ctx, h.buyRequest(trader, res.Mint, 1_000_000_000000, 0))
	assert.ErrorIs(t, err, curve.ErrInsufficientFunds)

	assert.Equal(t, lamportsBefore, h.balance(trader))
	assert.Equal(t, tokensBefore, h.tokens(res.Mint, trader))
	assert.Equal(t, custodyBefore, h.balance(res.BondingCurve))
	assert.Equal(t, feesBefore, h.balance(h.feeRecipient))
	curveAfter, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, curveBefore, curveAfter)
}

func TestDustRoundTripsDoNotDrainCurve(t *testing.T) {
	h := newHarness(t, true)
	h.bootstrap()
	res := h.create("post-1")
	victim := h.newTrader(100_000_000)
	_, err := h.ctrl.Buy(h.ctx, h.buyRequest(victim, res.Mint, 100_000_000_000000, 100_000_000))
	require.NoError(t, err)

	const dust = 3_541_353
	penniless := h.newTrader(0)
	_, err = h.ctrl.Buy(h.ctx, h.buyRequest(penniless, res.Mint, dust, 0))
	assert.ErrorIs(t, err, curve.ErrTooMuchSolRequired)
	_, err = h.ctrl.Buy(h.ctx, h.buyRequest(penniless, res.Mint, dust, 2))
	assert.ErrorIs(t, err, curve.ErrInsufficientFunds)
	assert.Zero(t, h.tokens(res.Mint, penniless))

	trader := h.newTrader(1_000)
	for i := 0; i < 50; i++ {
		bought, err := h.ctrl.Buy(h.ctx, h.buyRequest(trader, res.Mint, dust, 2))
		require.NoError(t, err)
		require.Equal(t, uint64(2), bought.SolAmount)
		_, err = h.ctrl.Sell(h.ctx, h.buyRequest(trader, res.Mint, dust, 0))
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(950), h.balance(trader))

	bc, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, curve.CurveReserve()+bc.RealSolReserves, h.balance(res.BondingCurve))
}

func TestConcurrentBuysConserveFunds(t *testing.T) {
	h := newHarness(t, true)
	h.bootstrap()
	res := h.create("post-1")

	const (
		traders = 8
		amount  = 1_000_000_000000
		funding = 10_000_000
	)
	users := make([]solana.PublicKey, traders)
	for i := range users {
		users[i] = h.newTrader(funding)
	}
	before := h.balance(h.creator) + h.balance(h.feeRecipient) + h.balance(res.BondingCurve) + traders*funding

	var g errgroup.Group
	for _, user := range users {
		user := user
		g.Go(func() error {
			_, err := h.ctrl.Buy(h.ctx, h.buyRequest(user, res.Mint, amount, funding))
			return err
		})
	}
	require.NoError(t, g.Wait())

	after := h.balance(h.creator) + h.balance(h.feeRecipient) + h.balance(res.BondingCurve)
	for _, user := range users {
		after += h.balance(user)
		assert.Equal(t, uint64(amount), h.tokens(res.Mint, user))
	}
	assert.Equal(t, before, after)

	bc, err := h.ctrl.Curve(h.ctx, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, initialRealTokens-traders*amount, bc.RealTokenReserves)
	assert.Equal(t, initialVirtualTokens-traders*amount, bc.VirtualTokenReserves)
	assert.Equal(t, uint64(2_253_524), bc.RealSolReserves)
	assert.Equal(t, curve.CurveReserve()+bc.RealSolReserves, h.balance(res.BondingCurve))
	assert.Equal(t, totalSupply-traders*amount, h.tokens(res.Mint, res.BondingCurve))

	records := h.events(0)
	for i := 1; i < len(records); i++ {
		assert.Equal(t, records[i-1].Seq+1, records[i].Seq)
	}
}

func TestCommittedEventsReachBusAndMetrics(t *testing.T) {
	logger := zaptest.NewLogger(t)
	db, err := ledger.NewDB(ledger.NewMemStore(), logger)
	require.NoError(t, err)

	bus := events.NewBus(logger, 16)
	var (
		mu   sync.Mutex
		seen []events.EventType
	)
	bus.SubscribeFunc(events.All, func(_ context.Context, rec events.Record) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, rec.Event.Type())
		return nil
	})

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	authority := solana.NewWallet().PublicKey()
	ctrl, err := NewController(ControllerConfig{
		ProgramID: solana.NewWallet().PublicKey(),
		DB:        db,
		Bus:       bus,
		Metrics:   collector,
		Logger:    logger,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ctrl.Initialize(ctx, authority))
	params := curve.Params{
		WithdrawAuthority:           authority,
		FeeRecipient:                authority,
		InitialVirtualTokenReserves: initialVirtualTokens,
		InitialVirtualSolReserves:   initialVirtualSol,
		InitialRealTokenReserves:    initialRealTokens,
		TokenTotalSupply:            totalSupply,
	}
	require.NoError(t, ctrl.SetParams(ctx, authority, params))
	assert.ErrorIs(t, ctrl.SetParams(ctx, solana.NewWallet().PublicKey(), params), curve.ErrNotAuthorized)

	require.NoError(t, bus.Shutdown(ctx))

	mu.Lock()
	assert.Equal(t, []events.EventType{events.ParamsChanged}, seen)
	mu.Unlock()

	count, err := testutil.GatherAndCount(reg, "pumpcurve_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// initialize and set_params succeeded once, set_params was rejected once.
	count, err = testutil.GatherAndCount(reg, "pumpcurve_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
