package orderbook

import (
	"github.com/uinb/galois-go/internal/decimal"
)

// priceHeap is a binary heap of decimal prices. ascending selects
// min-heap (asks) vs max-heap (bids) ordering.
type priceHeap struct {
	prices    []decimal.Decimal
	ascending bool
}

func (h *priceHeap) Len() int { return len(h.prices) }

func (h *priceHeap) Less(i, j int) bool {
	c := h.prices[i].Cmp(h.prices[j])
	if h.ascending {
		return c < 0
	}
	return c > 0
}

func (h *priceHeap) Swap(i, j int) { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) { h.prices = append(h.prices, x.(decimal.Decimal)) }

func (h *priceHeap) Pop() any {
	old := h.prices
	n := len(old)
	v := old[n-1]
	h.prices = old[:n-1]
	return v
}

func (h *priceHeap) Peek() decimal.Decimal { return h.prices[0] }
