// Package tests exercises the engine end to end the way a real
// sequence of RPC commands would, without going through the wire
// protocol itself.
package tests

import (
	"errors"
	"testing"

	"github.com/uinb/galois-go/internal/command"
	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
	"github.com/uinb/galois-go/internal/engine"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func user(n byte) core.UserId {
	var u core.UserId
	u[31] = n
	return u
}

func apply(t *testing.T, e *engine.Engine, id uint64, cmd command.Command) engine.Result {
	t.Helper()
	res, err := e.Apply(id, cmd, 0)
	if err != nil {
		t.Fatalf("apply event %d (cmd %d): %v", id, cmd.Cmd, err)
	}
	return res
}

func openMarket(t *testing.T, e *engine.Engine, id uint64, sym core.Symbol, takerFee, makerFee string) {
	t.Helper()
	apply(t, e, id, command.Command{
		Cmd:        command.CmdUpdateSymbol,
		Symbol:     sym,
		Open:       true,
		BaseScale:  8,
		QuoteScale: 8,
		TakerFee:   d(t, takerFee),
		MakerFee:   d(t, makerFee),
		MinAmount:  decimal.Zero,
		MinVol:     decimal.Zero,
	})
}

// Scenario 1: deposit then a partial withdrawal leaves the remainder
// available. TVL tracks +10.0 then -3.0, and both legs emit a proof.
func TestDepositThenWithdraw(t *testing.T) {
	e := engine.New()
	u1 := user(1)

	depositRes := apply(t, e, 1, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: 100, BlockNumber: 10, Amount: d(t, "10.0")})
	if len(depositRes.Proof.Updates) == 0 {
		t.Fatal("expected a proof to be emitted for the deposit")
	}
	if got := e.TVL(); got.Cmp(d(t, "10.0")) != 0 {
		t.Fatalf("tvl after deposit: got %s want 10.0", got)
	}

	withdrawRes := apply(t, e, 2, command.Command{Cmd: command.CmdTransferOut, UserId: u1, Currency: 100, BlockNumber: 11, Amount: d(t, "3.0")})
	if len(withdrawRes.Proof.Updates) == 0 {
		t.Fatal("expected a proof to be emitted for the withdraw")
	}

	if got := e.Ledger.Balance(u1, 100).Available; got.Cmp(d(t, "7.0")) != 0 {
		t.Fatalf("got %s want 7.0", got)
	}
	if got := e.TVL(); got.Cmp(d(t, "7.0")) != 0 {
		t.Fatalf("tvl after withdraw: got %s want 7.0", got)
	}
}

// A withdraw that exceeds TVL (even if the account itself has enough
// frozen/available elsewhere) must be rejected with a no-op proof.
func TestWithdrawExceedingTVLIsRejected(t *testing.T) {
	e := engine.New()
	u1 := user(1)
	apply(t, e, 1, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: 100, BlockNumber: 1, Amount: d(t, "1.0")})

	_, err := e.Apply(2, command.Command{Cmd: command.CmdTransferOut, UserId: u1, Currency: 100, BlockNumber: 2, Amount: d(t, "1.5")}, 0)
	var rejected *engine.EventRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected EventRejected, got %v", err)
	}
}

// A replayed (block_number, user_id) deposit receipt must be rejected
// as a duplicate rather than crediting the account twice.
func TestDuplicateDepositReceiptIsRejected(t *testing.T) {
	e := engine.New()
	u1 := user(1)

	apply(t, e, 1, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: 100, BlockNumber: 7, Amount: d(t, "5.0")})

	_, err := e.Apply(2, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: 100, BlockNumber: 7, Amount: d(t, "5.0")}, 0)
	var rejected *engine.EventRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected EventRejected for duplicate receipt, got %v", err)
	}
	if got := e.Ledger.Balance(u1, 100).Available; got.Cmp(d(t, "5.0")) != 0 {
		t.Fatalf("duplicate receipt must not double-credit: got %s want 5.0", got)
	}
	if got := e.TVL(); got.Cmp(d(t, "5.0")) != 0 {
		t.Fatalf("duplicate receipt must not double-count tvl: got %s want 5.0", got)
	}
}

// A replayed (block_number, user_id) withdraw receipt must likewise be
// rejected as a duplicate.
func TestDuplicateWithdrawReceiptIsRejected(t *testing.T) {
	e := engine.New()
	u1 := user(1)

	apply(t, e, 1, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: 100, BlockNumber: 1, Amount: d(t, "10.0")})
	apply(t, e, 2, command.Command{Cmd: command.CmdTransferOut, UserId: u1, Currency: 100, BlockNumber: 8, Amount: d(t, "2.0")})

	_, err := e.Apply(3, command.Command{Cmd: command.CmdTransferOut, UserId: u1, Currency: 100, BlockNumber: 8, Amount: d(t, "2.0")}, 0)
	var rejected *engine.EventRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected EventRejected for duplicate receipt, got %v", err)
	}
	if got := e.Ledger.Balance(u1, 100).Available; got.Cmp(d(t, "8.0")) != 0 {
		t.Fatalf("duplicate receipt must not double-debit: got %s want 8.0", got)
	}
}

func TestWithdrawMoreThanAvailableIsRejected(t *testing.T) {
	e := engine.New()
	u1 := user(1)
	apply(t, e, 1, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: 100, BlockNumber: 1, Amount: d(t, "1.0")})

	_, err := e.Apply(2, command.Command{Cmd: command.CmdTransferOut, UserId: u1, Currency: 100, BlockNumber: 2, Amount: d(t, "2.0")}, 0)
	var rejected *engine.EventRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected EventRejected, got %v", err)
	}
}

// Scenario 2: a bid taker crossing a cheaper resting ask fills at the
// maker's price and is refunded the price improvement.
func TestCrossWithPriceImprovement(t *testing.T) {
	e := engine.New()
	sym := core.Symbol{Base: 101, Quote: 100}
	u1, u2 := user(1), user(2)
	openMarket(t, e, 1, sym, "0", "0")

	apply(t, e, 2, command.Command{Cmd: command.CmdTransferIn, UserId: u2, Currency: sym.Base, Amount: d(t, "1")})
	apply(t, e, 3, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: sym.Quote, Amount: d(t, "10000")})

	apply(t, e, 4, command.Command{Cmd: command.CmdAskLimit, Symbol: sym, UserId: u2, OrderId: 1, Price: d(t, "9999"), Amount: d(t, "1")})
	apply(t, e, 5, command.Command{Cmd: command.CmdBidLimit, Symbol: sym, UserId: u1, OrderId: 2, Price: d(t, "10000"), Amount: d(t, "1")})

	if got := e.Ledger.Balance(u1, sym.Base).Available; got.Cmp(d(t, "1")) != 0 {
		t.Fatalf("taker base: got %s want 1", got)
	}
	if got := e.Ledger.Balance(u1, sym.Quote).Total(); got.Cmp(d(t, "1")) != 0 {
		t.Fatalf("taker should be refunded exactly the price improvement: got %s want 1", got)
	}
	if got := e.Ledger.Balance(u2, sym.Quote).Available; got.Cmp(d(t, "9999")) != 0 {
		t.Fatalf("maker quote: got %s want 9999", got)
	}
}

// Scenario 3: a partial fill leaves the maker resting at a reduced
// size, and canceling it releases exactly what remained frozen.
func TestPartialFillThenCancel(t *testing.T) {
	e := engine.New()
	sym := core.Symbol{Base: 101, Quote: 100}
	u1, u2 := user(1), user(2)
	openMarket(t, e, 1, sym, "0", "0")

	apply(t, e, 2, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: sym.Quote, Amount: d(t, "10000")})
	apply(t, e, 3, command.Command{Cmd: command.CmdTransferIn, UserId: u2, Currency: sym.Base, Amount: d(t, "0.5")})

	apply(t, e, 4, command.Command{Cmd: command.CmdBidLimit, Symbol: sym, UserId: u1, OrderId: 1, Price: d(t, "10000"), Amount: d(t, "1")})
	apply(t, e, 5, command.Command{Cmd: command.CmdAskLimit, Symbol: sym, UserId: u2, OrderId: 2, Price: d(t, "9999"), Amount: d(t, "0.5")})

	book, ok := e.Book(sym)
	if !ok {
		t.Fatal("market not found")
	}
	resting, ok := book.FindOrder(1)
	if !ok {
		t.Fatal("maker should still be resting")
	}
	if resting.Unfilled.Cmp(d(t, "0.5")) != 0 {
		t.Fatalf("resting remainder: got %s want 0.5", resting.Unfilled)
	}
	if got := e.Ledger.Balance(u1, sym.Quote).Frozen; got.Cmp(d(t, "5000")) != 0 {
		t.Fatalf("frozen after partial fill: got %s want 5000", got)
	}

	apply(t, e, 6, command.Command{Cmd: command.CmdCancel, Symbol: sym, UserId: u1, OrderId: 1})
	if got := e.Ledger.Balance(u1, sym.Quote).Available; got.Cmp(d(t, "5000")) != 0 {
		t.Fatalf("available after cancel: got %s want 5000", got)
	}
	if got := e.Ledger.Balance(u1, sym.Quote).Frozen; !got.IsZero() {
		t.Fatalf("expected nothing left frozen, got %s", got)
	}
}

// Scenario 4: symmetric positive fees on a full cross.
func TestSymmetricFeesOnFullCross(t *testing.T) {
	e := engine.New()
	sym := core.Symbol{Base: 101, Quote: 100}
	u1, u2 := user(1), user(2) // u1 asks (taker), u2 bids (maker)
	openMarket(t, e, 1, sym, "0.001", "0.001")

	apply(t, e, 2, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: sym.Base, Amount: d(t, "1")})
	apply(t, e, 3, command.Command{Cmd: command.CmdTransferIn, UserId: u2, Currency: sym.Quote, Amount: d(t, "10000")})

	apply(t, e, 4, command.Command{Cmd: command.CmdBidLimit, Symbol: sym, UserId: u2, OrderId: 1, Price: d(t, "10000"), Amount: d(t, "1")})
	apply(t, e, 5, command.Command{Cmd: command.CmdAskLimit, Symbol: sym, UserId: u1, OrderId: 2, Price: d(t, "9999"), Amount: d(t, "1")})

	if got := e.Ledger.Balance(u1, sym.Quote).Available; got.Cmp(d(t, "9990")) != 0 {
		t.Fatalf("taker quote: got %s want 9990", got)
	}
	if got := e.Ledger.Balance(u2, sym.Base).Available; got.Cmp(d(t, "0.999")) != 0 {
		t.Fatalf("maker base: got %s want 0.999", got)
	}
	if got := e.Ledger.Balance(core.SYSTEM, sym.Quote).Available; got.Cmp(d(t, "10")) != 0 {
		t.Fatalf("system quote fee: got %s want 10", got)
	}
	if got := e.Ledger.Balance(core.SYSTEM, sym.Base).Available; got.Cmp(d(t, "0.001")) != 0 {
		t.Fatalf("system base fee: got %s want 0.001", got)
	}
}

// Scenario 5: self-trade prevention stops a taker crossing its own
// resting order, leaving it untouched.
func TestSelfTradePreventionEndToEnd(t *testing.T) {
	e := engine.New()
	sym := core.Symbol{Base: 101, Quote: 100}
	u1 := user(1)
	openMarket(t, e, 1, sym, "0", "0")
	apply(t, e, 2, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: sym.Quote, BlockNumber: 1, Amount: d(t, "100")})
	apply(t, e, 3, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: sym.Base, BlockNumber: 2, Amount: d(t, "1")})

	apply(t, e, 4, command.Command{Cmd: command.CmdBidLimit, Symbol: sym, UserId: u1, OrderId: 1, Price: d(t, "100"), Amount: d(t, "1")})
	res := apply(t, e, 5, command.Command{Cmd: command.CmdAskLimit, Symbol: sym, UserId: u1, OrderId: 2, Price: d(t, "100"), Amount: d(t, "1")})

	if len(res.Outputs) != 1 {
		t.Fatalf("expected a single taker output and no fills, got %d", len(res.Outputs))
	}
	book, _ := e.Book(sym)
	if resting, ok := book.FindOrder(1); !ok || resting.Unfilled.Cmp(d(t, "1")) != 0 {
		t.Fatal("the resting bid must be untouched by the self-trade attempt")
	}
}

// Scenario 6: a taker crossing more than MaxMakersPerCall resting
// orders is conditionally canceled after consuming exactly the cap.
func TestMakerCutoffEndToEnd(t *testing.T) {
	e := engine.New()
	sym := core.Symbol{Base: 101, Quote: 100}
	u1, u2 := user(1), user(2)
	openMarket(t, e, 1, sym, "0", "0")

	apply(t, e, 2, command.Command{Cmd: command.CmdTransferIn, UserId: u2, Currency: sym.Quote, Amount: d(t, "3")})
	apply(t, e, 3, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: sym.Base, Amount: d(t, "100")})

	eventId := uint64(4)
	for i := core.OrderId(1); i <= 30; i++ {
		apply(t, e, eventId, command.Command{Cmd: command.CmdBidLimit, Symbol: sym, UserId: u2, OrderId: i, Price: d(t, "0.1"), Amount: d(t, "1")})
		eventId++
	}

	res := apply(t, e, eventId, command.Command{Cmd: command.CmdAskLimit, Symbol: sym, UserId: u1, OrderId: 100, Price: d(t, "0.1"), Amount: d(t, "100")})

	makerFills := len(res.Outputs) - 1 // last output is the taker record
	if makerFills != 20 {
		t.Fatalf("expected exactly 20 maker fills, got %d", makerFills)
	}

	book, _ := e.Book(sym)
	for i := core.OrderId(1); i <= 20; i++ {
		if _, ok := book.FindOrder(i); ok {
			t.Fatalf("order %d should have been consumed", i)
		}
	}
	for i := core.OrderId(21); i <= 30; i++ {
		if _, ok := book.FindOrder(i); !ok {
			t.Fatalf("order %d should still be resting", i)
		}
	}
}

func TestSnapshotRoundTripPreservesState(t *testing.T) {
	e := engine.New()
	sym := core.Symbol{Base: 101, Quote: 100}
	u1, u2 := user(1), user(2)
	openMarket(t, e, 1, sym, "0.001", "0.001")
	apply(t, e, 2, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: sym.Quote, Amount: d(t, "10000")})
	apply(t, e, 3, command.Command{Cmd: command.CmdTransferIn, UserId: u2, Currency: sym.Base, Amount: d(t, "1")})
	apply(t, e, 4, command.Command{Cmd: command.CmdBidLimit, Symbol: sym, UserId: u1, OrderId: 1, Price: d(t, "9000"), Amount: d(t, "0.3")})

	state := e.ExportState()

	restored := engine.New()
	if err := restored.ImportState(state); err != nil {
		t.Fatalf("import: %v", err)
	}

	if got := restored.Ledger.Balance(u1, sym.Quote).Frozen; got.Cmp(d(t, "2700")) != 0 {
		t.Fatalf("restored frozen: got %s want 2700", got)
	}
	book, ok := restored.Book(sym)
	if !ok {
		t.Fatal("restored market missing")
	}
	resting, ok := book.FindOrder(1)
	if !ok || resting.Unfilled.Cmp(d(t, "0.3")) != 0 {
		t.Fatal("restored order book should contain the resting bid")
	}
	if restored.CurrentEventId() != e.CurrentEventId() {
		t.Fatalf("event id: got %d want %d", restored.CurrentEventId(), e.CurrentEventId())
	}
	if restored.TVL().Cmp(e.TVL()) != 0 {
		t.Fatalf("tvl: got %s want %s", restored.TVL(), e.TVL())
	}
	if restored.Prover.Tree().Root() != e.Prover.Tree().Root() {
		t.Fatal("restored merkle tree root must match the original after rebuild")
	}

	// a deposit after restore must still be deduplicated correctly:
	// a fresh (block_number, user_id) continues accruing TVL normally.
	res := apply(t, restored, 5, command.Command{Cmd: command.CmdTransferIn, UserId: u1, Currency: sym.Quote, BlockNumber: 50, Amount: d(t, "1")})
	if len(res.Proof.Updates) == 0 {
		t.Fatal("expected a proof for the post-restore deposit")
	}
}
