package api

import (
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/events"
	"github.com/rovshanmuradov/pumpcurve/internal/lifecycle"
	"github.com/rovshanmuradov/pumpcurve/internal/pricing"
	"go.uber.org/zap"
)

// maxEventsPage caps one Events reply.
const maxEventsPage = 1000

// JSONRPCServer adapts the controller to gorilla/rpc. Caller identities are
// taken from the request as given; the endpoint is meant for a trusted
// network.
type JSONRPCServer struct {
	ctrl   *lifecycle.Controller
	logger *zap.Logger
}

func NewJSONRPCServer(ctrl *lifecycle.Controller, logger *zap.Logger) *JSONRPCServer {
	return &JSONRPCServer{ctrl: ctrl, logger: logger.Named("api")}
}

type PingReply struct {
	Success bool   `json:"success"`
	LastSeq uint64 `json:"lastSeq"`
}

func (j *JSONRPCServer) Ping(_ *http.Request, _ *struct{}, reply *PingReply) error {
	reply.Success = true
	reply.LastSeq = j.ctrl.LastSeq()
	return nil
}

type ConfigReply struct {
	Initialized                       bool             `json:"initialized"`
	Authority                         solana.PublicKey `json:"authority"`
	WithdrawAuthority                 solana.PublicKey `json:"withdrawAuthority"`
	FeeRecipient                      solana.PublicKey `json:"feeRecipient"`
	InitialVirtualTokenReserves       uint64           `json:"initialVirtualTokenReserves"`
	InitialVirtualSolReserves         uint64           `json:"initialVirtualSolReserves"`
	InitialRealTokenReserves          uint64           `json:"initialRealTokenReserves"`
	TokenTotalSupply                  uint64           `json:"tokenTotalSupply"`
	FeeBasisPoints                    uint16           `json:"feeBasisPoints"`
	MintFeeSol                        uint64           `json:"mintFeeSol"`
	TradingFeeCreatorBasisPoints      uint16           `json:"tradingFeeCreatorBasisPoints"`
	TokenShareCreatorBasisPoints      uint16           `json:"tokenShareCreatorBasisPoints"`
	SolShareFirstBuyerAfterGraduation uint64           `json:"solShareFirstBuyerAfterGraduation"`
	SolShareProtocolAfterGraduation   uint64           `json:"solShareProtocolAfterGraduation"`
}

func (j *JSONRPCServer) Config(req *http.Request, _ *struct{}, reply *ConfigReply) error {
	cfg, err := j.ctrl.Config(req.Context())
	if err != nil {
		return err
	}
	*reply = ConfigReply{
		Initialized:                       cfg.Initialized,
		Authority:                         cfg.Authority,
		WithdrawAuthority:                 cfg.WithdrawAuthority,
		FeeRecipient:                      cfg.FeeRecipient,
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
	}
	return nil
}

type MintArgs struct {
	Mint solana.PublicKey `json:"mint"`
}

type CurveReply struct {
	Mint                 solana.PublicKey `json:"mint"`
	VirtualTokenReserves uint64           `json:"virtualTokenReserves"`
	VirtualSolReserves   uint64           `json:"virtualSolReserves"`
	RealTokenReserves    uint64           `json:"realTokenReserves"`
	RealSolReserves      uint64           `json:"realSolReserves"`
	TokenTotalSupply     uint64           `json:"tokenTotalSupply"`
	Complete             bool             `json:"complete"`
	Creator              solana.PublicKey `json:"creator"`
	FirstBuyer           solana.PublicKey `json:"firstBuyer"`
}

func curveReply(bc *curve.BondingCurve) CurveReply {
	return CurveReply{
		Mint:                 bc.Mint,
		VirtualTokenReserves: bc.VirtualTokenReserves,
		VirtualSolReserves:   bc.VirtualSolReserves,
		RealTokenReserves:    bc.RealTokenReserves,
		RealSolReserves:      bc.RealSolReserves,
		TokenTotalSupply:     bc.TokenTotalSupply,
		Complete:             bc.Complete,
		Creator:              bc.CreatorAddress,
		FirstBuyer:           bc.FirstBuyerAddress,
	}
}

func (j *JSONRPCServer) Curve(req *http.Request, args *MintArgs, reply *CurveReply) error {
	bc, err := j.ctrl.Curve(req.Context(), args.Mint)
	if err != nil {
		return err
	}
	*reply = curveReply(bc)
	return nil
}

type QuoteArgs struct {
	Mint   solana.PublicKey `json:"mint"`
	Amount uint64           `json:"amount"`
}

type QuoteReply struct {
	SolAmount            uint64 `json:"solAmount"`
	PricePerToken        uint64 `json:"pricePerToken"`
	VirtualTokenReserves uint64 `json:"virtualTokenReserves"`
	VirtualSolReserves   uint64 `json:"virtualSolReserves"`
}

func quoteReply(q pricing.Quote) QuoteReply {
	return QuoteReply{
		SolAmount:            q.SolAmount,
		PricePerToken:        q.PricePerToken,
		VirtualTokenReserves: q.NewVirtualTokenReserves,
		VirtualSolReserves:   q.NewVirtualSolReserves,
	}
}

func (j *JSONRPCServer) QuoteBuy(req *http.Request, args *QuoteArgs, reply *QuoteReply) error {
	q, err := j.ctrl.QuoteBuy(req.Context(), args.Mint, args.Amount)
	if err != nil {
		return err
	}
	*reply = quoteReply(q)
	return nil
}

func (j *JSONRPCServer) QuoteSell(req *http.Request, args *QuoteArgs, reply *QuoteReply) error {
	q, err := j.ctrl.QuoteSell(req.Context(), args.Mint, args.Amount)
	if err != nil {
		return err
	}
	*reply = quoteReply(q)
	return nil
}

// BalanceArgs asks for Owner's lamports and, when Mint is set, its tokens.
type BalanceArgs struct {
	Owner solana.PublicKey  `json:"owner"`
	Mint  *solana.PublicKey `json:"mint,omitempty"`
}

type BalanceReply struct {
	Lamports uint64 `json:"lamports"`
	Tokens   uint64 `json:"tokens"`
}

func (j *JSONRPCServer) Balance(req *http.Request, args *BalanceArgs, reply *BalanceReply) error {
	lamports, err := j.ctrl.Balance(req.Context(), args.Owner)
	if err != nil {
		return err
	}
	reply.Lamports = lamports
	if args.Mint != nil {
		tokens, err := j.ctrl.TokenBalance(req.Context(), *args.Mint, args.Owner)
		if err != nil {
			return err
		}
		reply.Tokens = tokens
	}
	return nil
}

type EventsArgs struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit"`
}

type EventRecord struct {
	Seq   uint64           `json:"seq"`
	Type  events.EventType `json:"type"`
	Event events.Event     `json:"event"`
}

type EventsReply struct {
	Events []EventRecord `json:"events"`
}

func (j *JSONRPCServer) Events(_ *http.Request, args *EventsArgs, reply *EventsReply) error {
	limit := args.Limit
	if limit <= 0 || limit > maxEventsPage {
		limit = maxEventsPage
	}
	records, err := j.ctrl.Events(args.From, limit)
	if err != nil {
		return err
	}
	reply.Events = make([]EventRecord, len(records))
	for i, rec := range records {
		reply.Events[i] = EventRecord{Seq: rec.Seq, Type: rec.Event.Type(), Event: rec.Event}
	}
	return nil
}

type CreateArgs struct {
	Creator      solana.PublicKey `json:"creator"`
	Name         string           `json:"name"`
	Symbol       string           `json:"symbol"`
	URI          string           `json:"uri"`
	ExternalRef  string           `json:"externalRef"`
	DirectLaunch bool             `json:"directLaunch"`
}

type CreateReply struct {
	Mint         solana.PublicKey `json:"mint"`
	BondingCurve solana.PublicKey `json:"bondingCurve"`
}

func (j *JSONRPCServer) Create(req *http.Request, args *CreateArgs, reply *CreateReply) error {
	res, err := j.ctrl.Create(req.Context(), lifecycle.CreateRequest{
		Creator:      args.Creator,
		Name:         args.Name,
		Symbol:       args.Symbol,
		URI:          args.URI,
		ExternalRef:  args.ExternalRef,
		DirectLaunch: args.DirectLaunch,
	})
	if err != nil {
		return err
	}
	reply.Mint = res.Mint
	reply.BondingCurve = res.BondingCurve
	return nil
}

// TradeArgs carries either a literal Limit or an Expected amount with a
// Slippage policy.
type TradeArgs struct {
	User         solana.PublicKey        `json:"user"`
	Mint         solana.PublicKey        `json:"mint"`
	Amount       uint64                  `json:"amount"`
	Limit        uint64                  `json:"limit"`
	Expected     uint64                  `json:"expected"`
	Slippage     *pricing.SlippageConfig `json:"slippage,omitempty"`
	FeeRecipient solana.PublicKey        `json:"feeRecipient"`
	Creator      solana.PublicKey        `json:"creator"`
}

func (a *TradeArgs) request() lifecycle.TradeRequest {
	return lifecycle.TradeRequest{
		User:         a.User,
		Mint:         a.Mint,
		Amount:       a.Amount,
		Limit:        a.Limit,
		Expected:     a.Expected,
		Slippage:     a.Slippage,
		FeeRecipient: a.FeeRecipient,
		Creator:      a.Creator,
	}
}

type TradeReply struct {
	SolAmount     uint64     `json:"solAmount"`
	TokenAmount   uint64     `json:"tokenAmount"`
	PricePerToken uint64     `json:"pricePerToken"`
	PlatformFee   uint64     `json:"platformFee"`
	CreatorFee    uint64     `json:"creatorFee"`
	Completed     bool       `json:"completed"`
	Curve         CurveReply `json:"curve"`
}

func tradeReply(res *lifecycle.TradeResult) TradeReply {
	return TradeReply{
		SolAmount:     res.SolAmount,
		TokenAmount:   res.TokenAmount,
		PricePerToken: res.PricePerToken,
		PlatformFee:   res.Fees.Platform,
		CreatorFee:    res.Fees.Creator,
		Completed:     res.Completed,
		Curve:         curveReply(&res.Curve),
	}
}

func (j *JSONRPCServer) Buy(req *http.Request, args *TradeArgs, reply *TradeReply) error {
	res, err := j.ctrl.Buy(req.Context(), args.request())
	if err != nil {
		return err
	}
	*reply = tradeReply(res)
	return nil
}

func (j *JSONRPCServer) Sell(req *http.Request, args *TradeArgs, reply *TradeReply) error {
	res, err := j.ctrl.Sell(req.Context(), args.request())
	if err != nil {
		return err
	}
	*reply = tradeReply(res)
	return nil
}

type WithdrawArgs struct {
	Caller       solana.PublicKey `json:"caller"`
	Mint         solana.PublicKey `json:"mint"`
	FeeRecipient solana.PublicKey `json:"feeRecipient"`
	Creator      solana.PublicKey `json:"creator"`
	FirstBuyer   solana.PublicKey `json:"firstBuyer"`
}

type WithdrawReply struct {
	CreatorTokens uint64     `json:"creatorTokens"`
	CallerTokens  uint64     `json:"callerTokens"`
	FirstBuyerSol uint64     `json:"firstBuyerSol"`
	ProtocolSol   uint64     `json:"protocolSol"`
	AdminSol      uint64     `json:"adminSol"`
	Curve         CurveReply `json:"curve"`
}

func (j *JSONRPCServer) Withdraw(req *http.Request, args *WithdrawArgs, reply *WithdrawReply) error {
	res, err := j.ctrl.Withdraw(req.Context(), lifecycle.WithdrawRequest{
		Caller:       args.Caller,
		Mint:         args.Mint,
		FeeRecipient: args.FeeRecipient,
		Creator:      args.Creator,
		FirstBuyer:   args.FirstBuyer,
	})
	if err != nil {
		return err
	}
	*reply = WithdrawReply{
		CreatorTokens: res.Plan.CreatorTokens,
		CallerTokens:  res.Plan.CallerTokens,
		FirstBuyerSol: res.Plan.FirstBuyerSol,
		ProtocolSol:   res.Plan.ProtocolSol,
		AdminSol:      res.Plan.AdminSol,
		Curve:         curveReply(&res.Curve),
	}
	return nil
}

type DepositArgs struct {
	Caller   solana.PublicKey `json:"caller"`
	Owner    solana.PublicKey `json:"owner"`
	Lamports uint64           `json:"lamports"`
}

func (j *JSONRPCServer) Deposit(req *http.Request, args *DepositArgs, reply *BalanceReply) error {
	if err := j.ctrl.Deposit(req.Context(), args.Caller, args.Owner, args.Lamports); err != nil {
		return err
	}
	lamports, err := j.ctrl.Balance(req.Context(), args.Owner)
	if err != nil {
		return err
	}
	reply.Lamports = lamports
	j.logger.Debug("Deposit served", zap.String("owner", args.Owner.String()))
	return nil
}
