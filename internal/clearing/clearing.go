// Package clearing turns a matcher.Match into balance movements and a
// per-account output record, charging maker/taker fees to the SYSTEM
// account.
package clearing

import (
	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
	"github.com/uinb/galois-go/internal/ledger"
	"github.com/uinb/galois-go/internal/matcher"
)

// Output is one account's balance-delta record for a single command,
// the unit the prover turns into merkle leaves and the RPC sidecar
// pushes to subscribers.
type Output struct {
	EventId     core.EventId
	OrderId     core.OrderId
	UserId      core.UserId
	Symbol      core.Symbol
	Role        matcher.Role
	State       matcher.State
	Side        core.AskOrBid
	Price       decimal.Decimal
	BaseDelta   decimal.Decimal
	QuoteDelta  decimal.Decimal
	BaseCharge  decimal.Decimal
	QuoteCharge decimal.Decimal
	BaseAvail   decimal.Decimal
	QuoteAvail  decimal.Decimal
	BaseFrozen  decimal.Decimal
	QuoteFrozen decimal.Decimal
	Timestamp   uint64
}

func snapshot(l *ledger.Ledger, user core.UserId, base, quote core.Currency) (baseB, quoteB core.Balance) {
	return l.Balance(user, base), l.Balance(user, quote)
}

// Clear applies mr's balance effects to l and returns the per-account
// output records, in taker-last order the way the original source
// pushes the taker record after all maker records.
func Clear(l *ledger.Ledger, eventId core.EventId, symbol core.Symbol, takerFee, makerFee decimal.Decimal, mr matcher.Match, timestamp uint64) []Output {
	base, quote := symbol.Base, symbol.Quote

	switch mr.Taker.State {
	case matcher.Placed:
		baseB, quoteB := snapshot(l, mr.Taker.UserId, base, quote)
		return []Output{{
			EventId: eventId, OrderId: mr.Taker.OrderId, UserId: mr.Taker.UserId, Symbol: symbol,
			Role: matcher.RoleTaker, State: mr.Taker.State, Side: mr.Taker.Side, Price: mr.Taker.Price,
			BaseDelta: decimal.Zero, QuoteDelta: decimal.Zero, BaseCharge: decimal.Zero, QuoteCharge: decimal.Zero,
			BaseAvail: baseB.Available, QuoteAvail: quoteB.Available, BaseFrozen: baseB.Frozen, QuoteFrozen: quoteB.Frozen,
			Timestamp: timestamp,
		}}

	case matcher.Canceled:
		if mr.Taker.Side == core.Ask {
			_ = l.TryUnfreeze(mr.Taker.UserId, base, mr.Taker.Unfilled)
		} else {
			_ = l.TryUnfreeze(mr.Taker.UserId, quote, mr.Taker.Unfilled.Mul(mr.Taker.Price))
		}
		baseB, quoteB := snapshot(l, mr.Taker.UserId, base, quote)
		return []Output{{
			EventId: eventId, OrderId: mr.Taker.OrderId, UserId: mr.Taker.UserId, Symbol: symbol,
			Role: matcher.RoleTaker, State: mr.Taker.State, Side: mr.Taker.Side, Price: mr.Taker.Price,
			BaseDelta: decimal.Zero, QuoteDelta: decimal.Zero, BaseCharge: decimal.Zero, QuoteCharge: decimal.Zero,
			BaseAvail: baseB.Available, QuoteAvail: quoteB.Available, BaseFrozen: baseB.Frozen, QuoteFrozen: quoteB.Frozen,
			Timestamp: timestamp,
		}}

	default: // Filled, PartiallyFilled, ConditionallyCanceled
		if mr.Taker.Side == core.Ask {
			return clearAskTaker(l, eventId, symbol, takerFee, makerFee, mr, timestamp)
		}
		return clearBidTaker(l, eventId, symbol, takerFee, makerFee, mr, timestamp)
	}
}

func clearAskTaker(l *ledger.Ledger, eventId core.EventId, symbol core.Symbol, takerFee, makerFee decimal.Decimal, mr matcher.Match, timestamp uint64) []Output {
	base, quote := symbol.Base, symbol.Quote
	out := make([]Output, 0, len(mr.Maker)+1)
	baseSum, quoteSum := decimal.Zero, decimal.Zero

	for _, m := range mr.Maker {
		baseSum = baseSum.Add(m.Filled)
		quoteDecr := m.Filled.Mul(m.Price)
		quoteSum = quoteSum.Add(quoteDecr)

		l.AddToAvailable(m.UserId, base, m.Filled)
		_ = l.DeductFrozen(m.UserId, quote, quoteDecr)

		// makerFee negative is a rebate: DeductAvailable of a negative
		// charge credits the maker, and the matching SYSTEM debit below
		// mirrors it exactly, same as the original implementation. Markets
		// configuring a maker rebate are expected to keep SYSTEM funded
		// from taker fees collected elsewhere; neither side floors at zero.
		chargeFee := m.Filled.Mul(makerFee)
		_ = l.DeductAvailable(m.UserId, base, chargeFee)
		l.AddToAvailable(core.SYSTEM, base, chargeFee)

		baseB, quoteB := snapshot(l, m.UserId, base, quote)
		out = append(out, Output{
			EventId: eventId, OrderId: m.OrderId, UserId: m.UserId, Symbol: symbol,
			Role: matcher.RoleMaker, State: m.State, Side: core.Bid, Price: m.Price,
			BaseDelta: m.Filled, QuoteDelta: quoteDecr.Neg(), BaseCharge: chargeFee.Neg(), QuoteCharge: decimal.Zero,
			BaseAvail: baseB.Available, QuoteAvail: quoteB.Available, BaseFrozen: baseB.Frozen, QuoteFrozen: quoteB.Frozen,
			Timestamp: timestamp,
		})
	}

	if mr.Taker.State == matcher.ConditionallyCanceled {
		_ = l.TryUnfreeze(mr.Taker.UserId, base, mr.Taker.Unfilled)
	}
	_ = l.DeductFrozen(mr.Taker.UserId, base, baseSum)
	l.AddToAvailable(mr.Taker.UserId, quote, quoteSum)

	chargeFee := quoteSum.Mul(takerFee)
	_ = l.DeductAvailable(mr.Taker.UserId, quote, chargeFee)
	l.AddToAvailable(core.SYSTEM, quote, chargeFee)

	baseB, quoteB := snapshot(l, mr.Taker.UserId, base, quote)
	out = append(out, Output{
		EventId: eventId, OrderId: mr.Taker.OrderId, UserId: mr.Taker.UserId, Symbol: symbol,
		Role: matcher.RoleTaker, State: mr.Taker.State, Side: core.Ask, Price: mr.Taker.Price,
		BaseDelta: baseSum.Neg(), QuoteDelta: quoteSum, BaseCharge: decimal.Zero, QuoteCharge: chargeFee.Neg(),
		BaseAvail: baseB.Available, QuoteAvail: quoteB.Available, BaseFrozen: baseB.Frozen, QuoteFrozen: quoteB.Frozen,
		Timestamp: timestamp,
	})
	return out
}

func clearBidTaker(l *ledger.Ledger, eventId core.EventId, symbol core.Symbol, takerFee, makerFee decimal.Decimal, mr matcher.Match, timestamp uint64) []Output {
	base, quote := symbol.Base, symbol.Quote
	out := make([]Output, 0, len(mr.Maker)+1)
	baseSum, quoteSum, returnQuote := decimal.Zero, decimal.Zero, decimal.Zero

	for _, m := range mr.Maker {
		baseSum = baseSum.Add(m.Filled)
		quoteIncr := m.Filled.Mul(m.Price)
		quoteSum = quoteSum.Add(quoteIncr)
		returnQuote = returnQuote.Add(m.Filled.Mul(mr.Taker.Price).Sub(m.Filled.Mul(m.Price)))

		_ = l.DeductFrozen(m.UserId, base, m.Filled)
		l.AddToAvailable(m.UserId, quote, quoteIncr)

		chargeFee := quoteIncr.Mul(makerFee)
		_ = l.DeductAvailable(m.UserId, quote, chargeFee)
		l.AddToAvailable(core.SYSTEM, quote, chargeFee)

		baseB, quoteB := snapshot(l, m.UserId, base, quote)
		out = append(out, Output{
			EventId: eventId, OrderId: m.OrderId, UserId: m.UserId, Symbol: symbol,
			Role: matcher.RoleMaker, State: m.State, Side: core.Ask, Price: m.Price,
			BaseDelta: m.Filled.Neg(), QuoteDelta: quoteIncr, BaseCharge: decimal.Zero, QuoteCharge: chargeFee.Neg(),
			BaseAvail: baseB.Available, QuoteAvail: quoteB.Available, BaseFrozen: baseB.Frozen, QuoteFrozen: quoteB.Frozen,
			Timestamp: timestamp,
		})
	}

	l.AddToAvailable(mr.Taker.UserId, base, baseSum)
	_ = l.DeductFrozen(mr.Taker.UserId, quote, quoteSum)

	chargeFee := baseSum.Mul(takerFee)
	_ = l.DeductAvailable(mr.Taker.UserId, base, chargeFee)
	l.AddToAvailable(core.SYSTEM, base, chargeFee)

	if returnQuote.IsPositive() {
		_ = l.TryUnfreeze(mr.Taker.UserId, quote, returnQuote)
	}
	if mr.Taker.State == matcher.ConditionallyCanceled {
		_ = l.TryUnfreeze(mr.Taker.UserId, quote, mr.Taker.Unfilled.Mul(mr.Taker.Price))
	}

	baseB, quoteB := snapshot(l, mr.Taker.UserId, base, quote)
	out = append(out, Output{
		EventId: eventId, OrderId: mr.Taker.OrderId, UserId: mr.Taker.UserId, Symbol: symbol,
		Role: matcher.RoleTaker, State: mr.Taker.State, Side: core.Bid, Price: mr.Taker.Price,
		BaseDelta: baseSum, QuoteDelta: quoteSum.Neg(), BaseCharge: chargeFee.Neg(), QuoteCharge: decimal.Zero,
		BaseAvail: baseB.Available, QuoteAvail: quoteB.Available, BaseFrozen: baseB.Frozen, QuoteFrozen: quoteB.Frozen,
		Timestamp: timestamp,
	})
	return out
}
