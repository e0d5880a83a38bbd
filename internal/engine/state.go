package engine

import (
	"fmt"

	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
	"github.com/uinb/galois-go/internal/orderbook"
	"github.com/uinb/galois-go/internal/snapshot"
)

// ExportState captures the full in-memory state for a snapshot dump.
func (e *Engine) ExportState() snapshot.State {
	accounts := make(map[string]core.Account, len(e.Ledger.Accounts()))
	for user, acct := range e.Ledger.Accounts() {
		accounts[user.String()] = acct
	}

	books := make(map[string]snapshot.BookSnapshot, len(e.orderbooks))
	for sym, book := range e.orderbooks {
		books[sym.String()] = dumpBook(book)
	}

	return snapshot.State{
		EventId:  e.currentEventId,
		Symbols:  symbolConfigs(e.Symbols),
		Accounts: accounts,
		Books:    books,
		TVL:      e.tvl,
	}
}

// ImportState replaces all in-memory state with a loaded snapshot.
// Symbols must be restored before accounts/books reference them only
// insofar as callers rely on SymbolConfig lookups; the snapshot itself
// carries no cross-references that require ordering.
func (e *Engine) ImportState(state snapshot.State) error {
	e.currentEventId = state.EventId
	e.tvl = state.TVL
	e.receipts = newReceiptSet(receiptsCapacity)
	e.Symbols = core.NewSymbolRegistry()
	for _, cfg := range state.Symbols {
		e.Symbols.Set(cfg)
	}

	accounts := make(map[core.UserId]core.Account, len(state.Accounts))
	for hex, acct := range state.Accounts {
		user, err := core.UserIdFromHex(hex)
		if err != nil {
			return fmt.Errorf("engine: restore account %q: %w", hex, err)
		}
		accounts[user] = acct
	}
	e.Ledger.SetAccounts(accounts)

	e.orderbooks = make(map[core.Symbol]*orderbook.OrderBook, len(state.Books))
	for _, cfg := range state.Symbols {
		snap, ok := state.Books[cfg.Symbol.String()]
		if !ok {
			e.orderbooks[cfg.Symbol] = orderbook.New()
			continue
		}
		book := orderbook.New()
		if err := loadBook(book, snap); err != nil {
			return fmt.Errorf("engine: restore book %s: %w", cfg.Symbol, err)
		}
		e.orderbooks[cfg.Symbol] = book
	}

	if !e.Prover.Rebuild(accounts, e.orderbooks) {
		return fmt.Errorf("engine: restore merkle tree: balance overflowed leaf width")
	}
	return nil
}

func symbolConfigs(r *core.SymbolRegistry) []core.SymbolConfig {
	list := r.List()
	out := make([]core.SymbolConfig, len(list))
	for i, c := range list {
		out[i] = *c
	}
	return out
}

func dumpBook(book *orderbook.OrderBook) snapshot.BookSnapshot {
	asks, bids := book.Snapshot()
	return snapshot.BookSnapshot{
		Asks: orderSnapshots(asks),
		Bids: orderSnapshots(bids),
	}
}

func orderSnapshots(orders []orderbook.Order) []snapshot.OrderSnapshot {
	out := make([]snapshot.OrderSnapshot, len(orders))
	for i, o := range orders {
		out[i] = snapshot.OrderSnapshot{
			ID:       o.ID,
			User:     o.User,
			Price:    o.Price.String(),
			Unfilled: o.Unfilled.String(),
		}
	}
	return out
}

func loadBook(book *orderbook.OrderBook, snap snapshot.BookSnapshot) error {
	for _, o := range snap.Asks {
		order, err := toOrder(o)
		if err != nil {
			return err
		}
		book.Insert(order, core.Ask)
	}
	for _, o := range snap.Bids {
		order, err := toOrder(o)
		if err != nil {
			return err
		}
		book.Insert(order, core.Bid)
	}
	return nil
}

func toOrder(o snapshot.OrderSnapshot) (*orderbook.Order, error) {
	price, err := decimal.Parse(o.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	unfilled, err := decimal.Parse(o.Unfilled)
	if err != nil {
		return nil, fmt.Errorf("parse unfilled: %w", err)
	}
	return &orderbook.Order{ID: o.ID, User: o.User, Price: price, Unfilled: unfilled}, nil
}
