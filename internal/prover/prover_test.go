package prover

import (
	"testing"

	"github.com/uinb/galois-go/internal/clearing"
	"github.com/uinb/galois-go/internal/command"
	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
	"github.com/uinb/galois-go/internal/ledger"
	"github.com/uinb/galois-go/internal/matcher"
	"github.com/uinb/galois-go/internal/orderbook"
)

func user(n byte) core.UserId {
	var u core.UserId
	u[31] = n
	return u
}

func assetsCmd(cmdId uint32, u core.UserId, currency core.Currency) command.Command {
	return command.Command{Cmd: cmdId, UserId: u, Currency: currency}
}

func tradingCmd(sym core.Symbol) command.Command {
	return command.Command{Cmd: command.CmdAskLimit, Symbol: sym}
}

func TestProveAssetsCmdChangesRoot(t *testing.T) {
	p := New()
	l := ledger.New()
	u1 := user(1)
	l.AddToAvailable(u1, 100, decimal.New(500, 2)) // 5.00

	before := p.Tree().Root()
	proof, ok := p.ProveAssetsCmd(1, assetsCmd(command.CmdTransferIn, u1, 100), l)
	if !ok {
		t.Fatal("expected ok")
	}
	if p.Tree().Root() == before {
		t.Fatal("a balance-changing command must change the tree root")
	}
	if len(proof.Updates) != 1 {
		t.Fatalf("expected exactly one leaf update, got %d", len(proof.Updates))
	}
	if proof.Updates[0].Old == proof.Updates[0].New {
		t.Fatal("old and new leaf values must differ on a first deposit")
	}
	if len(proof.Command) == 0 {
		t.Fatal("expected the FusoCommand encoding to be populated")
	}
}

func TestProveAssetsCmdIsIdempotentOnRoot(t *testing.T) {
	p := New()
	l := ledger.New()
	u1 := user(1)
	l.AddToAvailable(u1, 100, decimal.New(100, 0))

	cmd := assetsCmd(command.CmdTransferIn, u1, 100)
	proof1, ok := p.ProveAssetsCmd(1, cmd, l)
	if !ok {
		t.Fatal("expected ok")
	}
	// proving the same unchanged balance again must reproduce the same
	// root and report the same old value as the new value.
	proof2, ok := p.ProveAssetsCmd(2, cmd, l)
	if !ok {
		t.Fatal("expected ok")
	}
	if proof1.Root != proof2.Root {
		t.Fatal("re-proving an unchanged balance must not move the root")
	}
	if proof2.Updates[0].Old != proof2.Updates[0].New {
		t.Fatal("expected old == new when the underlying balance didn't change")
	}
}

func TestProveRejectedEmitsNoOpLeaf(t *testing.T) {
	p := New()
	l := ledger.New()
	u1 := user(1)
	l.AddToAvailable(u1, 100, decimal.New(100, 0))
	// the tree tracks the ledger, as it does after the deposit's own proof
	if _, ok := p.ProveAssetsCmd(1, assetsCmd(command.CmdTransferIn, u1, 100), l); !ok {
		t.Fatal("expected ok")
	}

	before := p.Tree().Root()
	cmd := assetsCmd(command.CmdTransferOut, u1, 100)
	proof, ok := p.ProveRejected(2, cmd, command.FusoRejectTransferOut, l)
	if !ok {
		t.Fatal("expected ok")
	}
	if p.Tree().Root() != before {
		t.Fatal("a rejected command must not move the root")
	}
	if len(proof.Updates) != 1 || proof.Updates[0].Old != proof.Updates[0].New {
		t.Fatal("expected a single no-op leaf update with old == new")
	}
}

func TestRebuildReproducesRootFromBalances(t *testing.T) {
	l := ledger.New()
	u1 := user(1)
	l.AddToAvailable(u1, 100, decimal.New(500, 2))
	l.AddToAvailable(u1, 200, decimal.New(10, 0))

	sym := core.Symbol{Base: 100, Quote: 200}
	book := orderbook.New()
	book.Insert(&orderbook.Order{ID: 1, User: u1, Price: decimal.New(10, 0), Unfilled: decimal.New(5, 0)}, core.Bid)

	fresh := New()
	if _, ok := fresh.ProveAssetsCmd(1, assetsCmd(command.CmdTransferIn, u1, 100), l); !ok {
		t.Fatal("expected ok")
	}
	if _, ok := fresh.ProveAssetsCmd(2, assetsCmd(command.CmdTransferIn, u1, 200), l); !ok {
		t.Fatal("expected ok")
	}
	if _, ok := fresh.ProveTradingCmd(3, tradingCmd(sym), l, book, nil); !ok {
		t.Fatal("expected ok")
	}

	rebuilt := New()
	accounts := map[core.UserId]core.Account{u1: {100: l.Balance(u1, 100), 200: l.Balance(u1, 200)}}
	books := map[core.Symbol]*orderbook.OrderBook{sym: book}
	if !rebuilt.Rebuild(accounts, books) {
		t.Fatal("expected rebuild to succeed")
	}
	if rebuilt.Tree().Root() != fresh.Tree().Root() {
		t.Fatal("rebuilding from restored balances must reproduce the same root")
	}
}

func TestProveTradingCmdWritesOnlyOrderbookLeafWithNoOutputs(t *testing.T) {
	p := New()
	l := ledger.New()
	book := orderbook.New()
	sym := core.Symbol{Base: 1, Quote: 2}
	u1 := user(1)
	l.AddToAvailable(u1, sym.Quote, decimal.New(1000, 0))

	book.Insert(&orderbook.Order{ID: 1, User: u1, Price: decimal.New(10, 0), Unfilled: decimal.New(5, 0)}, core.Bid)

	proof, ok := p.ProveTradingCmd(1, tradingCmd(sym), l, book, nil)
	if !ok {
		t.Fatal("expected ok")
	}
	if len(proof.Updates) != 1 {
		t.Fatalf("expected exactly the orderbook leaf with no outputs, got %d", len(proof.Updates))
	}
}

func TestProveTradingCmdDedupesAccountLeavesAcrossOutputs(t *testing.T) {
	p := New()
	l := ledger.New()
	book := orderbook.New()
	sym := core.Symbol{Base: 1, Quote: 2}
	u1 := user(1)
	l.AddToAvailable(u1, sym.Base, decimal.New(1, 0))
	l.AddToAvailable(u1, sym.Quote, decimal.New(1, 0))

	// two outputs for the same user (e.g. a partial fill followed by
	// the taker's own record) must not double-write either currency's
	// account leaf.
	outputs := []clearing.Output{
		{UserId: u1, Symbol: sym, Role: matcher.RoleMaker},
		{UserId: u1, Symbol: sym, Role: matcher.RoleTaker},
	}
	proof, ok := p.ProveTradingCmd(1, tradingCmd(sym), l, book, outputs)
	if !ok {
		t.Fatal("expected ok")
	}
	// 1 orderbook leaf + 2 account leaves (base, quote) for the single user.
	if len(proof.Updates) != 3 {
		t.Fatalf("expected 3 deduplicated leaf updates, got %d", len(proof.Updates))
	}
}

func TestProveTradingCmdCountsMakerDeltas(t *testing.T) {
	p := New()
	l := ledger.New()
	book := orderbook.New()
	sym := core.Symbol{Base: 1, Quote: 2}
	maker1, maker2, taker := user(1), user(2), user(3)
	for _, u := range []core.UserId{maker1, maker2, taker} {
		l.AddToAvailable(u, sym.Base, decimal.New(1, 0))
		l.AddToAvailable(u, sym.Quote, decimal.New(1, 0))
	}

	outputs := []clearing.Output{
		{UserId: maker1, Symbol: sym, Role: matcher.RoleMaker, Price: decimal.New(10, 0)},
		{UserId: maker2, Symbol: sym, Role: matcher.RoleMaker, Price: decimal.New(11, 0)},
		{UserId: taker, Symbol: sym, Role: matcher.RoleTaker, Price: decimal.New(10, 0)},
	}
	proof, ok := p.ProveTradingCmd(1, tradingCmd(sym), l, book, outputs)
	if !ok {
		t.Fatal("expected ok")
	}
	if proof.MakerPageDelta != 2 {
		t.Fatalf("expected 2 distinct maker price pages, got %d", proof.MakerPageDelta)
	}
	if proof.MakerAccountDelta != 2 {
		t.Fatalf("expected 2 distinct maker accounts, got %d", proof.MakerAccountDelta)
	}
}

func TestProveTradingCmdRejectsOverflowingBalance(t *testing.T) {
	p := New()
	l := ledger.New()
	book := orderbook.New()
	sym := core.Symbol{Base: 1, Quote: 2}
	u1 := user(1)
	// a balance with more than 18 fractional digits cannot be converted
	// to the merkle leaf's fixed-point representation.
	overflow := decimal.New(1, 19)
	l.AddToAvailable(u1, sym.Base, overflow)

	outputs := []clearing.Output{{UserId: u1, Symbol: sym, Role: matcher.RoleTaker}}
	if _, ok := p.ProveTradingCmd(1, tradingCmd(sym), l, book, outputs); ok {
		t.Fatal("expected overflow to be rejected")
	}
}
