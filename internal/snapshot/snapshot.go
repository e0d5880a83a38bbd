// Package snapshot dumps and restores full engine state as a
// gzip-compressed JSON file, so a restart can load the latest snapshot
// instead of replaying the whole durable log from genesis.
package snapshot

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
)

// State is the full serializable snapshot of the engine's in-memory
// data: every symbol's configuration, every account's balances, the
// per-symbol order book depth needed to reconstruct it, and total
// value locked. The merkle tree itself is not serialized; it's
// rebuilt deterministically from Accounts/Books on import.
type State struct {
	EventId  uint64                  `json:"event_id"`
	Symbols  []core.SymbolConfig     `json:"symbols"`
	Accounts map[string]core.Account `json:"accounts"`
	Books    map[string]BookSnapshot `json:"books"`
	TVL      decimal.Decimal         `json:"tvl"`
}

// BookSnapshot carries enough of an order book's resting orders to
// rebuild it exactly: every order per side, grouped by price (in no
// particular price order), oldest first within each price.
type BookSnapshot struct {
	Asks []OrderSnapshot `json:"asks"`
	Bids []OrderSnapshot `json:"bids"`
}

type OrderSnapshot struct {
	ID       core.OrderId `json:"id"`
	User     core.UserId  `json:"user"`
	Price    string       `json:"price"`
	Unfilled string       `json:"unfilled"`
}

// Dump writes state to dir as "<id>.<ISO8601>.gz", matching the
// original coredump naming so operators can sort dumps by timestamp.
func Dump(dir string, id uint64, at time.Time, state State) error {
	name := fmt.Sprintf("%d.%s.gz", id, at.UTC().Format("2006-01-02T15:04:05"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(state); err != nil {
		gz.Close()
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	return gz.Close()
}

// LatestId returns the highest event id among the snapshot files in
// dir, or false if there are none.
func LatestId(dir string) (uint64, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, false, fmt.Errorf("snapshot: read dir %s: %w", dir, err)
	}
	var ids []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".gz") {
			continue
		}
		id, ok := parseId(e.Name())
		if ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids[0], true, nil
}

func parseId(name string) (uint64, bool) {
	stem := strings.TrimSuffix(name, ".gz")
	parts := strings.SplitN(stem, ".", 2)
	if len(parts) == 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Load reads back the snapshot file for id from dir.
func Load(dir string, id uint64) (State, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return State{}, fmt.Errorf("snapshot: read dir %s: %w", dir, err)
	}
	prefix := strconv.FormatUint(id, 10) + "."
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".gz") {
			return load(filepath.Join(dir, e.Name()))
		}
	}
	return State{}, fmt.Errorf("snapshot: no dump found for id %d in %s", id, dir)
}

func load(path string) (State, error) {
	f, err := os.Open(path)
	if err != nil {
		return State{}, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return State{}, fmt.Errorf("snapshot: gzip reader: %w", err)
	}
	defer gz.Close()

	var s State
	if err := json.NewDecoder(gz).Decode(&s); err != nil {
		return State{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	return s, nil
}
