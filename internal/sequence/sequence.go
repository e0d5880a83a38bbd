// Package sequence assigns a strictly increasing event id to every
// accepted command, persists it durably before the executor ever sees
// it, and replays the durable log forward on restart so the in-memory
// state can be rebuilt exactly.
package sequence

import (
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/uinb/galois-go/internal/command"
	"github.com/uinb/galois-go/internal/storage"
)

// Sequencer owns the next-id counter and the backing store. A single
// writer calls Append; concurrent readers may call NextId.
type Sequencer struct {
	mu     sync.Mutex
	nextId uint64
	store  *storage.Store
}

// Open recovers nextId by replaying the log once to find the highest
// persisted id, then returns a Sequencer ready to accept new commands.
func Open(store *storage.Store) (*Sequencer, error) {
	s := &Sequencer{store: store}
	var highest uint64
	seen := false
	if err := store.Replay(0, func(e storage.SequenceEntry) error {
		highest = e.Id
		seen = true
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "sequence: recover next id")
	}
	if seen {
		s.nextId = highest + 1
	}
	return s, nil
}

// NextId previews the id the next Append call will assign, without
// consuming it.
func (s *Sequencer) NextId() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextId
}

// Append durably logs cmd at the next id and returns that id. The
// caller must not hand the command to the executor until this
// succeeds: a failed write must never be executed, or replay and live
// execution would diverge.
func (s *Sequencer) Append(cmd command.Command) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(cmd)
	if err != nil {
		return 0, errors.Wrap(err, "sequence: marshal command")
	}
	id := s.nextId
	if err := s.store.AppendSequence(id, payload); err != nil {
		return 0, errors.Wrap(err, "sequence: append")
	}
	s.nextId++
	return id, nil
}

// Accept marks a logged entry as successfully executed.
func (s *Sequencer) Accept(id uint64) error {
	return s.store.MarkStatus(id, storage.StatusAccepted)
}

// Reject marks a logged entry as rejected by the executor: it stays in
// the log for audit but is skipped on replay.
func (s *Sequencer) Reject(id uint64) error {
	return s.store.MarkStatus(id, storage.StatusError)
}

// Replay delivers every previously accepted or pending command in id
// order to fn, starting at from. Entries already marked rejected are
// skipped, matching live execution (a rejected command never reaches
// the executor twice).
func (s *Sequencer) Replay(from uint64, fn func(id uint64, cmd command.Command) error) error {
	return s.store.Replay(from, func(e storage.SequenceEntry) error {
		if e.Status == storage.StatusError {
			return nil
		}
		var cmd command.Command
		if err := json.Unmarshal(e.Cmd, &cmd); err != nil {
			return errors.Wrapf(err, "sequence: unmarshal command at id %d", e.Id)
		}
		return fn(e.Id, cmd)
	})
}

// Prune deletes log entries strictly before id, used once their
// proofs have been confirmed on chain and a snapshot covers them.
func (s *Sequencer) Prune(beforeId uint64) error {
	return s.store.PruneBefore(beforeId)
}
