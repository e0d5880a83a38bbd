package engine

import "github.com/uinb/galois-go/internal/core"

// receiptsCapacity bounds the ephemeral dedup set: only the last this
// many transfer_in/transfer_out receipts are remembered, matching the
// original implementation's fixed-size IndexSet.
const receiptsCapacity = 1000

// receiptKey identifies one on-chain deposit/withdraw extrinsic.
type receiptKey struct {
	blockNumber uint64
	userId      core.UserId
}

// receiptSet is a capacity-bounded, insertion-ordered set used to
// reject a replayed (block_number, user_id) deposit or withdraw. When
// full, the oldest receipt is evicted to make room for the newest.
type receiptSet struct {
	capacity int
	seen     map[receiptKey]struct{}
	order    []receiptKey
}

func newReceiptSet(capacity int) *receiptSet {
	return &receiptSet{capacity: capacity, seen: make(map[receiptKey]struct{}, capacity)}
}

// save reports whether key is newly recorded. A false return means
// this (block_number, user_id) pair was already seen and the command
// must be rejected as a duplicate.
func (r *receiptSet) save(key receiptKey) bool {
	if _, exists := r.seen[key]; exists {
		return false
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	r.seen[key] = struct{}{}
	r.order = append(r.order, key)
	return true
}
