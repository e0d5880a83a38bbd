// Package orderbook implements the price-time priority limit order book:
// price-indexed FIFO pages with a heap for O(log n) best-price tracking
// and an order index for O(1) lookup and cancellation.
package orderbook

import (
	"container/heap"

	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
)

// Order is a resting order on one page.
type Order struct {
	ID       core.OrderId
	User     core.UserId
	Price    decimal.Decimal
	Unfilled decimal.Decimal
}

func (o *Order) IsFilled() bool { return o.Unfilled.IsZero() }

// page is the FIFO queue of orders resting at one price.
type page struct {
	price  decimal.Decimal
	orders []*Order // oldest first
	amount decimal.Decimal
}

func (p *page) isEmpty() bool { return len(p.orders) == 0 }

func (p *page) remove(id core.OrderId) *Order {
	for i, o := range p.orders {
		if o.ID == id {
			p.orders = append(p.orders[:i], p.orders[i+1:]...)
			p.amount = p.amount.Sub(o.Unfilled)
			return o
		}
	}
	return nil
}

// Level is one depth row: price, amount at that price, cumulative amount.
type Level struct {
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Cumulative decimal.Decimal
}

// Depth is a snapshot of both sides to a bounded number of levels.
type Depth struct {
	Symbol core.Symbol
	Asks   []Level
	Bids   []Level
}

type indexEntry struct {
	price decimal.Decimal
	side  core.AskOrBid
}

// OrderBook holds one symbol's resting orders. Not safe for concurrent
// use; the single-writer executor owns all mutation.
type OrderBook struct {
	asks map[string]*page
	bids map[string]*page

	askHeap *priceHeap
	bidHeap *priceHeap

	index map[core.OrderId]indexEntry

	AskSize decimal.Decimal
	BidSize decimal.Decimal
}

func New() *OrderBook {
	return &OrderBook{
		asks:    make(map[string]*page),
		bids:    make(map[string]*page),
		askHeap: &priceHeap{ascending: true},
		bidHeap: &priceHeap{ascending: false},
		index:   make(map[core.OrderId]indexEntry),
		AskSize: decimal.Zero,
		BidSize: decimal.Zero,
	}
}

func (b *OrderBook) tape(side core.AskOrBid) map[string]*page {
	if side == core.Ask {
		return b.asks
	}
	return b.bids
}

func (b *OrderBook) priceHeapFor(side core.AskOrBid) *priceHeap {
	if side == core.Ask {
		return b.askHeap
	}
	return b.bidHeap
}

// Insert adds a resting order to its side's tape.
func (b *OrderBook) Insert(o *Order, side core.AskOrBid) {
	if side == core.Ask {
		b.AskSize = b.AskSize.Add(o.Unfilled)
	} else {
		b.BidSize = b.BidSize.Add(o.Unfilled)
	}
	tape := b.tape(side)
	key := o.Price.String()
	pg, ok := tape[key]
	if !ok {
		pg = &page{price: o.Price, amount: decimal.Zero}
		tape[key] = pg
		heap.Push(b.priceHeapFor(side), o.Price)
	}
	pg.orders = append(pg.orders, o)
	pg.amount = pg.amount.Add(o.Unfilled)
	b.index[o.ID] = indexEntry{price: o.Price, side: side}
}

// Remove cancels a resting order. Returns nil if not found.
func (b *OrderBook) Remove(id core.OrderId) *Order {
	entry, ok := b.index[id]
	if !ok {
		return nil
	}
	tape := b.tape(entry.side)
	key := entry.price.String()
	pg, ok := tape[key]
	if !ok {
		return nil
	}
	removed := pg.remove(id)
	if removed == nil {
		return nil
	}
	delete(b.index, id)
	if entry.side == core.Ask {
		b.AskSize = b.AskSize.Sub(removed.Unfilled)
	} else {
		b.BidSize = b.BidSize.Sub(removed.Unfilled)
	}
	if pg.isEmpty() {
		delete(tape, key)
		b.removePriceFromHeap(b.priceHeapFor(entry.side), entry.price)
	}
	return removed
}

func (b *OrderBook) removePriceFromHeap(h *priceHeap, price decimal.Decimal) {
	for i, p := range h.prices {
		if p.Cmp(price) == 0 {
			heap.Remove(h, i)
			return
		}
	}
}

// BestAsk returns the lowest ask price, if any.
func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	if b.askHeap.Len() == 0 {
		return decimal.Zero, false
	}
	return b.askHeap.Peek(), true
}

// BestBid returns the highest bid price, if any.
func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	if b.bidHeap.Len() == 0 {
		return decimal.Zero, false
	}
	return b.bidHeap.Peek(), true
}

func (b *OrderBook) bestPrice(side core.AskOrBid) (decimal.Decimal, bool) {
	if side == core.Ask {
		return b.BestAsk()
	}
	return b.BestBid()
}

// PeekMaker returns the oldest resting order a taker on `takerSide`
// would cross first, without removing it.
func (b *OrderBook) PeekMaker(takerSide core.AskOrBid) (*Order, bool) {
	opposite := takerSide.Opposite()
	price, ok := b.bestPrice(opposite)
	if !ok {
		return nil, false
	}
	pg := b.tape(opposite)[price.String()]
	if pg == nil || len(pg.orders) == 0 {
		return nil, false
	}
	return pg.orders[0], true
}

// FillMaker applies a fill of `delta` to the oldest order on the
// opposite side's best page. If the order is fully filled it is
// removed from the page, the index, and (if the page empties) the
// heap. Panics if there is no such maker; callers must PeekMaker first.
func (b *OrderBook) FillMaker(takerSide core.AskOrBid, delta decimal.Decimal) *Order {
	opposite := takerSide.Opposite()
	price, ok := b.bestPrice(opposite)
	if !ok {
		panic("orderbook: FillMaker with empty opposite side")
	}
	key := price.String()
	tape := b.tape(opposite)
	pg := tape[key]
	maker := pg.orders[0]
	maker.Unfilled = maker.Unfilled.Sub(delta)
	pg.amount = pg.amount.Sub(delta)
	if opposite == core.Ask {
		b.AskSize = b.AskSize.Sub(delta)
	} else {
		b.BidSize = b.BidSize.Sub(delta)
	}
	if maker.IsFilled() {
		pg.orders = pg.orders[1:]
		delete(b.index, maker.ID)
		if pg.isEmpty() {
			delete(tape, key)
			b.removePriceFromHeap(b.priceHeapFor(opposite), price)
		}
	}
	return maker
}

// Side reports which tape a resting order sits on.
func (b *OrderBook) Side(id core.OrderId) (core.AskOrBid, bool) {
	entry, ok := b.index[id]
	if !ok {
		return 0, false
	}
	return entry.side, true
}

// FindOrder looks an order up by id regardless of side.
func (b *OrderBook) FindOrder(id core.OrderId) (*Order, bool) {
	entry, ok := b.index[id]
	if !ok {
		return nil, false
	}
	tape := b.tape(entry.side)
	pg, ok := tape[entry.price.String()]
	if !ok {
		return nil, false
	}
	for _, o := range pg.orders {
		if o.ID == id {
			return o, true
		}
	}
	return nil, false
}

// Snapshot returns every resting order on each side, grouped by price
// but in no particular price order; within a price, orders stay in
// their original FIFO order. Used to serialize a book for a snapshot
// dump and to rebuild one via repeated Insert calls on restore.
func (b *OrderBook) Snapshot() (asks, bids []Order) {
	for _, pg := range b.asks {
		for _, o := range pg.orders {
			asks = append(asks, *o)
		}
	}
	for _, pg := range b.bids {
		for _, o := range pg.orders {
			bids = append(bids, *o)
		}
	}
	return asks, bids
}

// Depth returns up to `levels` price rows on each side, best first, with
// cumulative amount.
func (b *OrderBook) Depth(symbol core.Symbol, levels int) Depth {
	d := Depth{Symbol: symbol}
	d.Asks = aggregate(b.asks, b.askHeap, levels)
	d.Bids = aggregate(b.bids, b.bidHeap, levels)
	return d
}

func aggregate(tape map[string]*page, h *priceHeap, levels int) []Level {
	prices := make([]decimal.Decimal, len(h.prices))
	copy(prices, h.prices)
	// selection sort is fine: books rarely have more than a few hundred
	// distinct price levels and this only runs for API/depth snapshots.
	ascending := h.ascending
	for i := 0; i < len(prices); i++ {
		best := i
		for j := i + 1; j < len(prices); j++ {
			c := prices[j].Cmp(prices[best])
			if (ascending && c < 0) || (!ascending && c > 0) {
				best = j
			}
		}
		prices[i], prices[best] = prices[best], prices[i]
	}
	out := make([]Level, 0, levels)
	cumulative := decimal.Zero
	for _, p := range prices {
		if len(out) >= levels {
			break
		}
		pg := tape[p.String()]
		cumulative = cumulative.Add(pg.amount)
		out = append(out, Level{Price: p, Amount: pg.amount, Cumulative: cumulative})
	}
	return out
}
