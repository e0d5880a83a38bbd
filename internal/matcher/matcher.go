// Package matcher implements price-time priority matching against an
// order book: self-trade prevention and a bounded per-call maker
// consumption limit.
package matcher

import (
	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
	"github.com/uinb/galois-go/internal/orderbook"
)

// MaxMakersPerCall bounds how many resting orders a single taker may
// consume before it's cut off and the remainder conditionally canceled.
// This keeps one executor tick's work bounded regardless of book depth.
const MaxMakersPerCall = 20

// State is the terminal or intermediate disposition of a taker or maker.
type State uint32

const (
	Placed State = iota
	Canceled
	Filled
	PartiallyFilled
	ConditionallyCanceled
)

// Role distinguishes which side of a fill an account played.
type Role uint32

const (
	RoleMaker Role = 0
	RoleTaker Role = 1
)

// Taker describes the incoming order's final disposition.
type Taker struct {
	UserId   core.UserId
	OrderId  core.OrderId
	Price    decimal.Decimal
	Unfilled decimal.Decimal
	Side     core.AskOrBid
	State    State
}

// Maker describes one resting order consumed by a taker.
type Maker struct {
	UserId  core.UserId
	OrderId core.OrderId
	Price   decimal.Decimal
	Filled  decimal.Decimal
	State   State
}

// Match is the full result of one execute-limit call: the taker's
// disposition plus every maker it traded against, oldest first.
type Match struct {
	Taker Taker
	Maker []Maker
}

// ExecuteLimit matches a new limit order against the book, then rests
// any remainder. Mutates book in place.
func ExecuteLimit(book *orderbook.OrderBook, user core.UserId, orderId core.OrderId, price, amount decimal.Decimal, side core.AskOrBid) Match {
	remaining := amount
	makers := make([]Maker, 0)
	makersLeft := MaxMakersPerCall

	for {
		if remaining.IsZero() {
			return Match{
				Taker: Taker{UserId: user, OrderId: orderId, Price: price, Unfilled: decimal.Zero, Side: side, State: Filled},
				Maker: makers,
			}
		}

		best, ok := book.PeekMaker(side)
		if !ok || !crosses(side, price, best.Price) {
			book.Insert(&orderbook.Order{ID: orderId, User: user, Price: price, Unfilled: remaining}, side)
			state := Placed
			if len(makers) > 0 {
				state = PartiallyFilled
			}
			return Match{
				Taker: Taker{UserId: user, OrderId: orderId, Price: price, Unfilled: remaining, Side: side, State: state},
				Maker: makers,
			}
		}

		if makersLeft == 0 {
			return Match{
				Taker: Taker{UserId: user, OrderId: orderId, Price: price, Unfilled: remaining, Side: side, State: ConditionallyCanceled},
				Maker: makers,
			}
		}

		if best.User == user {
			// self-trade prevention: stop instead of crossing our own order.
			state := ConditionallyCanceled
			return Match{
				Taker: Taker{UserId: user, OrderId: orderId, Price: price, Unfilled: remaining, Side: side, State: state},
				Maker: makers,
			}
		}

		delta := decimal.Min(remaining, best.Unfilled)
		fullyFilled := delta.Cmp(best.Unfilled) == 0
		fillState := PartiallyFilled
		if fullyFilled {
			fillState = Filled
		}
		makerOrderId, makerUser, makerPrice := best.ID, best.User, best.Price
		book.FillMaker(side, delta)
		remaining = remaining.Sub(delta)
		makers = append(makers, Maker{UserId: makerUser, OrderId: makerOrderId, Price: makerPrice, Filled: delta, State: fillState})
		makersLeft--
	}
}

// crosses reports whether a taker at price on side would match against
// a resting order at restingPrice.
func crosses(side core.AskOrBid, takerPrice, restingPrice decimal.Decimal) bool {
	if side == core.Bid {
		return takerPrice.Cmp(restingPrice) >= 0
	}
	return takerPrice.Cmp(restingPrice) <= 0
}

// Cancel removes a resting order and reports its disposition, or false
// if the order doesn't exist.
func Cancel(book *orderbook.OrderBook, orderId core.OrderId) (Match, bool) {
	side, ok := book.Side(orderId)
	if !ok {
		return Match{}, false
	}
	removed := book.Remove(orderId)
	if removed == nil {
		return Match{}, false
	}
	return Match{
		Taker: Taker{UserId: removed.User, OrderId: orderId, Price: removed.Price, Unfilled: removed.Unfilled, Side: side, State: Canceled},
	}, true
}
