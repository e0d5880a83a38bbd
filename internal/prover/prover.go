// Package prover turns a command's effects into sparse-Merkle-tree leaf
// updates and a compiled multiproof suitable for on-chain verification.
package prover

import (
	"math/big"

	"golang.org/x/crypto/blake2b"

	"github.com/uinb/galois-go/internal/clearing"
	"github.com/uinb/galois-go/internal/command"
	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
	"github.com/uinb/galois-go/internal/ledger"
	"github.com/uinb/galois-go/internal/matcher"
	"github.com/uinb/galois-go/internal/orderbook"
	"github.com/uinb/galois-go/internal/smt"
)

// LeafUpdate records one (key, old_value, new_value) write, in the
// order the tree was actually mutated, so a verifier can replay them
// against the pre-root.
type LeafUpdate struct {
	Key [32]byte
	Old smt.Leaf
	New smt.Leaf
}

// Proof is the full record submitted to the chain for one command:
// the SCALE-encoded FusoCommand, every leaf it touched, the
// maker-side page/account counts, and a compiled multiproof over
// those leaves against the post-root.
type Proof struct {
	EventId           core.EventId
	UserId            core.UserId
	Command           []byte
	Updates           []LeafUpdate
	MakerPageDelta    uint8
	MakerAccountDelta uint8
	Root              [32]byte
	MultiProof        []byte
}

func accountLeafKey(user core.UserId, currency core.Currency) [32]byte {
	buf := make([]byte, 1+32+4)
	buf[0] = 0x00
	copy(buf[1:33], user[:])
	putU32(buf[33:], uint32(currency))
	return blake2b.Sum256(buf)
}

func orderbookLeafKey(symbol core.Symbol) [32]byte {
	buf := make([]byte, 1+4+4)
	buf[0] = 0x01
	putU32(buf[1:5], uint32(symbol.Base))
	putU32(buf[5:9], uint32(symbol.Quote))
	return blake2b.Sum256(buf)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func put128(b []byte, v *big.Int) {
	bs := v.Bytes()
	copy(b[16-len(bs):16], bs)
}

func accountLeafValue(b core.Balance) (smt.Leaf, bool) {
	avail, ok1 := b.Available.ToMerkleUint128()
	frozen, ok2 := b.Frozen.ToMerkleUint128()
	if !ok1 || !ok2 {
		return smt.Leaf{}, false
	}
	var leaf smt.Leaf
	put128(leaf[0:16], avail)
	put128(leaf[16:32], frozen)
	return leaf, true
}

func orderbookLeafValue(askTotal, bidTotal decimal.Decimal) (smt.Leaf, bool) {
	a, ok1 := askTotal.ToMerkleUint128()
	b, ok2 := bidTotal.ToMerkleUint128()
	if !ok1 || !ok2 {
		return smt.Leaf{}, false
	}
	var leaf smt.Leaf
	put128(leaf[0:16], a)
	put128(leaf[16:32], b)
	return leaf, true
}

// Prover owns the tree and produces one Proof per state-mutating
// command.
type Prover struct {
	tree *smt.Tree
}

func New() *Prover {
	return &Prover{tree: smt.New()}
}

func (p *Prover) Tree() *smt.Tree { return p.tree }

// ProveTradingCmd writes the orderbook leaf first (matching the order
// the original implementation updates leaves in), then one account
// leaf per distinct (user, currency) touched by the outputs, skipping
// duplicates so each key is written once per command.
func (p *Prover) ProveTradingCmd(eventId core.EventId, cmd command.Command, l *ledger.Ledger, book *orderbook.OrderBook, outputs []clearing.Output) (Proof, bool) {
	symbol := cmd.Symbol
	var updates []LeafUpdate

	obLeaf, ok := orderbookLeafValue(book.AskSize, book.BidSize)
	if !ok {
		return Proof{}, false
	}
	obKey := orderbookLeafKey(symbol)
	old, newRoot := p.tree.Update(obKey, obLeaf)
	updates = append(updates, LeafUpdate{Key: obKey, Old: old, New: obLeaf})
	_ = newRoot

	seen := make(map[[40]byte]bool)
	var userId core.UserId
	for _, out := range outputs {
		userId = out.UserId
		for _, cur := range []core.Currency{symbol.Base, symbol.Quote} {
			var seenKey [40]byte
			copy(seenKey[:32], out.UserId[:])
			putU32(seenKey[32:], uint32(cur))
			if seen[seenKey] {
				continue
			}
			seen[seenKey] = true
			bal := l.Balance(out.UserId, cur)
			leafVal, ok := accountLeafValue(bal)
			if !ok {
				return Proof{}, false
			}
			key := accountLeafKey(out.UserId, cur)
			old, root := p.tree.Update(key, leafVal)
			updates = append(updates, LeafUpdate{Key: key, Old: old, New: leafVal})
			newRoot = root
		}
	}

	pageDelta, accountDelta := makerDeltas(outputs)
	return p.finish(eventId, userId, updates, newRoot, cmd.EncodeFuso(), pageDelta, accountDelta), true
}

// makerDeltas counts the distinct maker price pages and maker accounts
// touched by outputs, bounded by the matcher's per-call maker cap so
// both fit in a u8.
func makerDeltas(outputs []clearing.Output) (pageDelta, accountDelta uint8) {
	pages := make(map[string]struct{})
	accounts := make(map[core.UserId]struct{})
	for _, out := range outputs {
		if out.Role != matcher.RoleMaker {
			continue
		}
		pages[out.Price.String()] = struct{}{}
		accounts[out.UserId] = struct{}{}
	}
	return uint8(len(pages)), uint8(len(accounts))
}

// ProveAssetsCmd writes a single account leaf for a deposit/withdraw.
func (p *Prover) ProveAssetsCmd(eventId core.EventId, cmd command.Command, l *ledger.Ledger) (Proof, bool) {
	bal := l.Balance(cmd.UserId, cmd.Currency)
	leafVal, ok := accountLeafValue(bal)
	if !ok {
		return Proof{}, false
	}
	key := accountLeafKey(cmd.UserId, cmd.Currency)
	old, root := p.tree.Update(key, leafVal)
	updates := []LeafUpdate{{Key: key, Old: old, New: leafVal}}
	return p.finish(eventId, cmd.UserId, updates, root, cmd.EncodeFuso(), 0, 0), true
}

// ProveRejected emits a no-op proof for a deposit/withdraw that failed
// a TVL or balance precondition: the account leaf is rewritten with
// its unchanged value (old_v == new_v), and the command is encoded
// under its Reject variant so the chain can tell the two apart.
func (p *Prover) ProveRejected(eventId core.EventId, cmd command.Command, variant uint32, l *ledger.Ledger) (Proof, bool) {
	bal := l.Balance(cmd.UserId, cmd.Currency)
	leafVal, ok := accountLeafValue(bal)
	if !ok {
		return Proof{}, false
	}
	key := accountLeafKey(cmd.UserId, cmd.Currency)
	old, root := p.tree.Update(key, leafVal)
	updates := []LeafUpdate{{Key: key, Old: old, New: leafVal}}
	rejected := cmd
	rejected.Cmd = variant
	return p.finish(eventId, cmd.UserId, updates, root, rejected.EncodeFuso(), 0, 0), true
}

// Rebuild discards the current tree and replays every account and
// orderbook leaf from restored state, used after a snapshot load so
// the tree's root matches the restored balances without having to
// serialize the tree itself.
func (p *Prover) Rebuild(accounts map[core.UserId]core.Account, books map[core.Symbol]*orderbook.OrderBook) bool {
	tree := smt.New()
	for user, acct := range accounts {
		for currency, bal := range acct {
			leafVal, ok := accountLeafValue(bal)
			if !ok {
				return false
			}
			tree.Update(accountLeafKey(user, currency), leafVal)
		}
	}
	for symbol, book := range books {
		leafVal, ok := orderbookLeafValue(book.AskSize, book.BidSize)
		if !ok {
			return false
		}
		tree.Update(orderbookLeafKey(symbol), leafVal)
	}
	p.tree = tree
	return true
}

func (p *Prover) finish(eventId core.EventId, userId core.UserId, updates []LeafUpdate, root [32]byte, cmdBytes []byte, pageDelta, accountDelta uint8) Proof {
	proofs := make([]smt.Proof, len(updates))
	for i, u := range updates {
		proofs[i] = p.tree.Prove(u.Key)
		proofs[i].Value = u.New
	}
	return Proof{
		EventId:           eventId,
		UserId:            userId,
		Command:           cmdBytes,
		Updates:           updates,
		MakerPageDelta:    pageDelta,
		MakerAccountDelta: accountDelta,
		Root:              root,
		MultiProof:        smt.CompileMultiProof(proofs),
	}
}
