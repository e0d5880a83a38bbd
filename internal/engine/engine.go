// Package engine is the single-writer executor: it applies one command
// at a time against the ledger and order books, produces clearing
// outputs, and feeds the prover so every mutation is accompanied by a
// merkle proof.
package engine

import (
	"fmt"

	"github.com/uinb/galois-go/internal/clearing"
	"github.com/uinb/galois-go/internal/command"
	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
	"github.com/uinb/galois-go/internal/ledger"
	"github.com/uinb/galois-go/internal/matcher"
	"github.com/uinb/galois-go/internal/orderbook"
	"github.com/uinb/galois-go/internal/prover"
)

// Engine owns all in-memory trading state. Not safe for concurrent
// mutation: the caller must serialize calls to Apply.
type Engine struct {
	Symbols    *core.SymbolRegistry
	Ledger     *ledger.Ledger
	Prover     *prover.Prover
	orderbooks map[core.Symbol]*orderbook.OrderBook

	currentEventId uint64
	tvl            decimal.Decimal
	receipts       *receiptSet
}

func New() *Engine {
	return &Engine{
		Symbols:    core.NewSymbolRegistry(),
		Ledger:     ledger.New(),
		Prover:     prover.New(),
		orderbooks: make(map[core.Symbol]*orderbook.OrderBook),
		tvl:        decimal.Zero,
		receipts:   newReceiptSet(receiptsCapacity),
	}
}

// TVL returns the total value locked across every deposit and
// withdraw ever applied, tracked independently of per-account balances
// so a deposit can be rejected before it ever touches the ledger.
func (e *Engine) TVL() decimal.Decimal { return e.tvl }

func (e *Engine) book(symbol core.Symbol) (*orderbook.OrderBook, bool) {
	b, ok := e.orderbooks[symbol]
	return b, ok
}

// CurrentEventId returns the id of the most recently applied command.
func (e *Engine) CurrentEventId() uint64 { return e.currentEventId }

// Result is everything produced by applying one command: its clearing
// outputs and the merkle proof covering every leaf they touched.
type Result struct {
	Outputs []clearing.Output
	Proof   prover.Proof
}

// Apply executes one command against the current state, in the same
// event-handling order the original implementation uses: validate,
// freeze, match, clear, prove. A rejection leaves balances, books and
// TVL untouched; Apply still records eventId as current, and a transfer
// rejected after its receipt check keeps that receipt.
func (e *Engine) Apply(eventId uint64, cmd command.Command, timestamp uint64) (Result, error) {
	e.currentEventId = eventId

	switch cmd.Cmd {
	case command.CmdAskLimit, command.CmdBidLimit:
		return e.applyLimit(eventId, cmd, timestamp)
	case command.CmdCancel:
		return e.applyCancel(eventId, cmd, timestamp)
	case command.CmdTransferIn:
		return e.applyTransferIn(eventId, cmd)
	case command.CmdTransferOut:
		return e.applyTransferOut(eventId, cmd)
	case command.CmdUpdateSymbol:
		return e.applyUpdateSymbol(cmd)
	default:
		return Result{}, &EventIgnored{Cause: fmt.Errorf("engine: unsupported command %d", cmd.Cmd)}
	}
}

func (e *Engine) applyLimit(eventId uint64, cmd command.Command, timestamp uint64) (Result, error) {
	side := core.Ask
	if cmd.Cmd == command.CmdBidLimit {
		side = core.Bid
	}

	cfg, ok := e.Symbols.Get(cmd.Symbol)
	if !ok || !cfg.ShouldAccept(cmd.Price, cmd.Amount) {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("order can't be accepted")}
	}
	book, ok := e.book(cmd.Symbol)
	if !ok {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("orderbook not found")}
	}
	if _, exists := book.FindOrder(cmd.OrderId); exists {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("duplicate order id")}
	}

	freezeCurrency, freezeAmount := freezeFor(cmd.Symbol, side, cmd.Price, cmd.Amount)
	if err := e.Ledger.TryFreeze(cmd.UserId, freezeCurrency, freezeAmount); err != nil {
		return Result{}, &EventRejected{EventId: eventId, Cause: err}
	}

	mr := matcher.ExecuteLimit(book, cmd.UserId, cmd.OrderId, cmd.Price, cmd.Amount, side)
	outputs := clearing.Clear(e.Ledger, core.EventId(eventId), cmd.Symbol, cfg.TakerFee, cfg.MakerFee, mr, timestamp)
	pf, ok := e.Prover.ProveTradingCmd(core.EventId(eventId), cmd, e.Ledger, book, outputs)
	if !ok {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("balance overflowed merkle leaf width")}
	}
	return Result{Outputs: outputs, Proof: pf}, nil
}

// freezeFor mirrors the original implementation's freeze_if: an ask
// freezes base at face amount, a bid freezes quote at price*amount.
func freezeFor(symbol core.Symbol, side core.AskOrBid, price, amount decimal.Decimal) (core.Currency, decimal.Decimal) {
	if side == core.Ask {
		return symbol.Base, amount
	}
	return symbol.Quote, price.Mul(amount)
}

func (e *Engine) applyCancel(eventId uint64, cmd command.Command, timestamp uint64) (Result, error) {
	cfg, ok := e.Symbols.Get(cmd.Symbol)
	if !ok {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("orderbook not exists")}
	}
	book, ok := e.book(cmd.Symbol)
	if !ok {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("orderbook not exists")}
	}
	order, exists := book.FindOrder(cmd.OrderId)
	if !exists || order.User != cmd.UserId {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("order not exists")}
	}

	mr, ok := matcher.Cancel(book, cmd.OrderId)
	if !ok {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("cancel failed")}
	}
	outputs := clearing.Clear(e.Ledger, core.EventId(eventId), cmd.Symbol, cfg.TakerFee, cfg.MakerFee, mr, timestamp)
	pf, ok := e.Prover.ProveTradingCmd(core.EventId(eventId), cmd, e.Ledger, book, outputs)
	if !ok {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("balance overflowed merkle leaf width")}
	}
	return Result{Outputs: outputs, Proof: pf}, nil
}

func (e *Engine) receiptKeyFor(cmd command.Command) receiptKey {
	return receiptKey{blockNumber: cmd.BlockNumber, userId: cmd.UserId}
}

// applyTransferIn credits available and increases TVL, deduplicating
// on (block_number, user_id) and rejecting (with a no-op proof) a
// deposit that would push TVL to or past the u64::MAX ceiling.
func (e *Engine) applyTransferIn(eventId uint64, cmd command.Command) (Result, error) {
	if !cmd.Amount.IsPositive() {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("amount must be positive")}
	}
	if !e.receipts.save(e.receiptKeyFor(cmd)) {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("duplicate transfer_in receipt")}
	}
	if e.tvl.Add(cmd.Amount).Cmp(core.MaxAmount()) >= 0 {
		pf, ok := e.Prover.ProveRejected(core.EventId(eventId), cmd, command.FusoRejectTransferIn, e.Ledger)
		if !ok {
			return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("balance overflowed merkle leaf width")}
		}
		return Result{Proof: pf}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("tvl out of limit")}
	}

	e.Ledger.AddToAvailable(cmd.UserId, cmd.Currency, cmd.Amount)
	e.tvl = e.tvl.Add(cmd.Amount)
	pf, ok := e.Prover.ProveAssetsCmd(core.EventId(eventId), cmd, e.Ledger)
	if !ok {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("balance overflowed merkle leaf width")}
	}
	return Result{Proof: pf}, nil
}

// applyTransferOut deducts available and decreases TVL, deduplicating
// on (block_number, user_id) and rejecting (with a no-op proof) a
// withdraw that exceeds TVL or the user's available balance.
func (e *Engine) applyTransferOut(eventId uint64, cmd command.Command) (Result, error) {
	if !cmd.Amount.IsPositive() {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("amount must be positive")}
	}
	if !e.receipts.save(e.receiptKeyFor(cmd)) {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("duplicate transfer_out receipt")}
	}
	if e.tvl.Cmp(cmd.Amount) < 0 {
		pf, ok := e.Prover.ProveRejected(core.EventId(eventId), cmd, command.FusoRejectTransferOut, e.Ledger)
		if !ok {
			return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("balance overflowed merkle leaf width")}
		}
		return Result{Proof: pf}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("tvl less than withdraw amount")}
	}

	if err := e.Ledger.DeductAvailable(cmd.UserId, cmd.Currency, cmd.Amount); err != nil {
		pf, ok := e.Prover.ProveRejected(core.EventId(eventId), cmd, command.FusoRejectTransferOut, e.Ledger)
		if !ok {
			return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("balance overflowed merkle leaf width")}
		}
		return Result{Proof: pf}, &EventRejected{EventId: eventId, Cause: err}
	}
	e.tvl = e.tvl.Sub(cmd.Amount)
	pf, ok := e.Prover.ProveAssetsCmd(core.EventId(eventId), cmd, e.Ledger)
	if !ok {
		return Result{}, &EventRejected{EventId: eventId, Cause: fmt.Errorf("balance overflowed merkle leaf width")}
	}
	return Result{Proof: pf}, nil
}

// applyUpdateSymbol opens a new market or reconfigures an existing one.
// Not logged to the prover: symbol configuration lives outside the
// account/orderbook merkle state, matching the original implementation.
func (e *Engine) applyUpdateSymbol(cmd command.Command) (Result, error) {
	e.Symbols.Set(core.SymbolConfig{
		Symbol:            cmd.Symbol,
		Open:              cmd.Open,
		BaseScale:         cmd.BaseScale,
		QuoteScale:        cmd.QuoteScale,
		TakerFee:          cmd.TakerFee,
		MakerFee:          cmd.MakerFee,
		BaseMakerFee:      cmd.BaseMakerFee,
		BaseTakerFee:      cmd.BaseTakerFee,
		FeeTimes:          cmd.FeeTimes,
		MinAmount:         cmd.MinAmount,
		MinVol:            cmd.MinVol,
		EnableMarketOrder: cmd.EnableMarketOrder,
	})
	if _, exists := e.book(cmd.Symbol); !exists {
		e.orderbooks[cmd.Symbol] = orderbook.New()
	}
	return Result{}, nil
}

// Book exposes a symbol's order book for read-only queries (depth,
// find-order); returns false if the symbol has never been opened.
func (e *Engine) Book(symbol core.Symbol) (*orderbook.OrderBook, bool) {
	return e.book(symbol)
}
