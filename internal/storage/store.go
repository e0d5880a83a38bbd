// Package storage wraps an embedded ordered key-value store (Pebble)
// providing the durable sequence log and the proof queue awaiting
// chain submission.
package storage

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

type Store struct {
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "storage: open pebble")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SequenceStatus tags a log entry's disposition, letting a replay skip
// re-delivering a command the executor already rejected.
type SequenceStatus uint8

const (
	StatusPending  SequenceStatus = 0
	StatusAccepted SequenceStatus = 1
	StatusError    SequenceStatus = 2
)

type sequenceRecord struct {
	Status SequenceStatus  `json:"status"`
	Cmd    json.RawMessage `json:"cmd"`
}

// AppendSequence durably writes a command at id, failing (and not
// handing the command to the executor) if the write itself fails.
func (s *Store) AppendSequence(id uint64, cmd json.RawMessage) error {
	rec := sequenceRecord{Status: StatusPending, Cmd: cmd}
	val, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "storage: marshal sequence record")
	}
	if err := s.db.Set(sequenceKey(id), val, pebble.Sync); err != nil {
		return errors.Wrap(err, "storage: append sequence")
	}
	return nil
}

// MarkStatus updates a logged entry's status without touching its
// command payload, used once the executor has decided the outcome.
func (s *Store) MarkStatus(id uint64, status SequenceStatus) error {
	val, closer, err := s.db.Get(sequenceKey(id))
	if err != nil {
		return errors.Wrap(err, "storage: read sequence entry for status update")
	}
	var rec sequenceRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		closer.Close()
		return errors.Wrap(err, "storage: unmarshal sequence record")
	}
	closer.Close()
	rec.Status = status
	out, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "storage: marshal sequence record")
	}
	return s.db.Set(sequenceKey(id), out, pebble.Sync)
}

// SequenceEntry is one replayed log record.
type SequenceEntry struct {
	Id     uint64
	Status SequenceStatus
	Cmd    json.RawMessage
}

// Replay iterates forward from `from`, calling fn for each entry until
// the log is drained or fn returns an error.
func (s *Store) Replay(from uint64, fn func(SequenceEntry) error) error {
	lower := sequenceKey(from)
	upper := keyUpperBound([]byte(prefixSequence))
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return errors.Wrap(err, "storage: open replay iterator")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id := idFromSequenceKey(iter.Key())
		var rec sequenceRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return errors.Wrap(err, "storage: unmarshal sequence record during replay")
		}
		if err := fn(SequenceEntry{Id: id, Status: rec.Status, Cmd: rec.Cmd}); err != nil {
			return err
		}
	}
	return nil
}

func idFromSequenceKey(k []byte) uint64 {
	suffix := k[len(prefixSequence):]
	var id uint64
	for _, b := range suffix {
		id = id<<8 | uint64(b)
	}
	return id
}

// PruneBefore deletes log entries strictly older than id.
func (s *Store) PruneBefore(id uint64) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange([]byte(prefixSequence), sequenceKey(id), nil); err != nil {
		return errors.Wrap(err, "storage: prune sequence range")
	}
	return batch.Commit(pebble.Sync)
}

// QueueProof stages a compiled proof for the chain submitter.
func (s *Store) QueueProof(id uint64, proof []byte) error {
	if err := s.db.Set(proofKey(id), proof, pebble.Sync); err != nil {
		return errors.Wrap(err, "storage: queue proof")
	}
	return nil
}

// DequeueProofs returns the (up to `limit`) lowest-id queued proofs,
// keyed by event id, for the chain submitter to batch. It does not
// remove them from the queue.
func (s *Store) DequeueProofs(limit int) (map[uint64][]byte, error) {
	lower := []byte(prefixProof)
	upper := keyUpperBound(lower)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrap(err, "storage: open proof iterator")
	}
	defer iter.Close()

	out := make(map[uint64][]byte)
	for iter.First(); iter.Valid() && len(out) < limit; iter.Next() {
		id := idFromProofKey(iter.Key())
		val := make([]byte, len(iter.Value()))
		copy(val, iter.Value())
		out[id] = val
	}
	return out, nil
}

func idFromProofKey(k []byte) uint64 {
	suffix := k[len(prefixProof):]
	var id uint64
	for _, b := range suffix {
		id = id<<8 | uint64(b)
	}
	return id
}

// DeleteProof removes a proof once the chain has confirmed it.
func (s *Store) DeleteProof(id uint64) error {
	if err := s.db.Delete(proofKey(id), pebble.Sync); err != nil {
		return errors.Wrap(err, "storage: delete proof")
	}
	return nil
}
