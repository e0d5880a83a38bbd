// Package core defines the engine's domain-identity types: accounts,
// currencies, symbols and balances.
package core

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/uinb/galois-go/internal/decimal"
)

// UserId is a 32-byte opaque account identifier, matching the chain's
// account representation rather than a 20-byte EVM address.
type UserId [32]byte

// SYSTEM is the distinguished fee-collection account.
var SYSTEM = UserId{}

func (u UserId) String() string {
	return "0x" + hex.EncodeToString(u[:])
}

// IsZero reports whether u is the SYSTEM account.
func (u UserId) IsZero() bool { return u == SYSTEM }

// UserIdFromHex parses a 0x-prefixed or bare 64-hex-character id.
func UserIdFromHex(s string) (UserId, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return UserId{}, fmt.Errorf("core: invalid user id %q: %w", s, err)
	}
	if len(b) != 32 {
		return UserId{}, fmt.Errorf("core: user id must be 32 bytes, got %d", len(b))
	}
	var u UserId
	copy(u[:], b)
	return u, nil
}

// Currency indexes an asset within an account.
type Currency uint32

// Symbol is a trading pair, (base currency, quote currency).
type Symbol struct {
	Base  Currency
	Quote Currency
}

func (s Symbol) String() string { return fmt.Sprintf("%d-%d", s.Base, s.Quote) }

// EventId is the strictly increasing sequence number assigned by the log.
type EventId uint64

// maxAmount is u64::MAX expressed as a Decimal, the ceiling the original
// implementation checks TVL against before crediting a deposit.
var maxAmount = mustParseMax()

func mustParseMax() decimal.Decimal {
	v, err := decimal.Parse("18446744073709551615")
	if err != nil {
		panic(err)
	}
	return v
}

// MaxAmount returns the TVL ceiling: a deposit that would push total
// value locked to or past this bound is rejected.
func MaxAmount() decimal.Decimal { return maxAmount }

// OrderId is unique per symbol, assigned by the matcher's caller.
type OrderId uint64

// AskOrBid is the side of an order or a fill.
type AskOrBid uint8

const (
	Ask AskOrBid = 0
	Bid AskOrBid = 1
)

func (s AskOrBid) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// Opposite returns the other side.
func (s AskOrBid) Opposite() AskOrBid {
	if s == Ask {
		return Bid
	}
	return Ask
}

// Balance is an account's available and frozen holdings of one currency.
type Balance struct {
	Available decimal.Decimal
	Frozen    decimal.Decimal
}

// Total returns available + frozen.
func (b Balance) Total() decimal.Decimal { return b.Available.Add(b.Frozen) }

// Account maps currency to balance for one user.
type Account map[Currency]Balance

// SymbolConfig is the static, rarely-changing configuration of a market,
// set by an UpdateSymbol command.
type SymbolConfig struct {
	Symbol            Symbol
	Open              bool
	BaseScale         uint32
	QuoteScale        uint32
	TakerFee          decimal.Decimal
	MakerFee          decimal.Decimal
	BaseMakerFee      decimal.Decimal
	BaseTakerFee      decimal.Decimal
	FeeTimes          uint32
	MinAmount         decimal.Decimal
	MinVol            decimal.Decimal
	EnableMarketOrder bool
}

// SymbolRegistry holds the set of configured markets. Not safe for
// concurrent writers; the engine's single-writer executor owns it.
type SymbolRegistry struct {
	configs map[Symbol]*SymbolConfig
}

func NewSymbolRegistry() *SymbolRegistry {
	return &SymbolRegistry{configs: make(map[Symbol]*SymbolConfig)}
}

func (r *SymbolRegistry) Set(cfg SymbolConfig) {
	c := cfg
	r.configs[cfg.Symbol] = &c
}

func (r *SymbolRegistry) Get(sym Symbol) (*SymbolConfig, bool) {
	cfg, ok := r.configs[sym]
	return cfg, ok
}

func (r *SymbolRegistry) List() []*SymbolConfig {
	out := make([]*SymbolConfig, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, c)
	}
	return out
}

// ShouldAccept reports whether a limit order at the given price/amount
// satisfies this symbol's minimums and scale limits, mirroring the
// original orderbook's should_accept predicate.
func (c *SymbolConfig) ShouldAccept(price, amount decimal.Decimal) bool {
	if !c.Open {
		return false
	}
	if price.Scale() > uint(c.QuoteScale) || amount.Scale() > uint(c.BaseScale) {
		return false
	}
	if amount.Cmp(c.MinAmount) < 0 {
		return false
	}
	vol := price.Mul(amount)
	return vol.Cmp(c.MinVol) >= 0
}
