package engine

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/uinb/galois-go/internal/clearing"
	"github.com/uinb/galois-go/internal/command"
	"github.com/uinb/galois-go/internal/sequence"
	"github.com/uinb/galois-go/internal/storage"
)

// Driver is the durable front door to Engine: every accepted command is
// logged before it's applied, and every applied command's proof is
// queued for chain submission before the caller is told it succeeded.
type Driver struct {
	seq    *sequence.Sequencer
	store  *storage.Store
	engine *Engine
}

func NewDriver(seq *sequence.Sequencer, store *storage.Store, eng *Engine) *Driver {
	return &Driver{seq: seq, store: store, engine: eng}
}

// Recover replays the durable log into engine, rebuilding every order
// book, balance and merkle leaf exactly as they were before restart.
// An engine restored from a snapshot resumes after the snapshot's event
// id; a fresh engine replays from the start of the log.
func (d *Driver) Recover(timestampFor func(id uint64) uint64) error {
	from := uint64(0)
	if id := d.engine.CurrentEventId(); id > 0 {
		from = id + 1
	}
	return d.seq.Replay(from, func(id uint64, cmd command.Command) error {
		_, err := d.engine.Apply(id, cmd, timestampFor(id))
		if err != nil {
			var rejected *EventRejected
			if errors.As(err, &rejected) {
				return nil
			}
			return err
		}
		return nil
	})
}

// Submit assigns an event id, durably logs cmd, applies it, records the
// outcome, and queues any produced proof. A write failure at any of
// these steps is an Interrupted error: the caller must stop driving the
// engine rather than risk executing the same id twice.
func (d *Driver) Submit(cmd command.Command, timestamp uint64) ([]clearing.Output, error) {
	id, err := d.seq.Append(cmd)
	if err != nil {
		return nil, &Interrupted{Cause: err}
	}

	result, applyErr := d.engine.Apply(id, cmd, timestamp)
	if applyErr != nil {
		var rejected *EventRejected
		if errors.As(applyErr, &rejected) {
			if err := d.seq.Reject(id); err != nil {
				return nil, &Interrupted{Cause: err}
			}
			// A rejected deposit/withdraw still produces a no-op proof
			// (old_v == new_v) that must reach the chain, so it learns
			// about the rejection rather than stalling on a missing event id.
			if len(result.Proof.Updates) > 0 {
				payload, err := json.Marshal(result.Proof)
				if err != nil {
					return nil, &Interrupted{Cause: err}
				}
				if err := d.store.QueueProof(id, payload); err != nil {
					return nil, &Interrupted{Cause: err}
				}
			}
			return nil, applyErr
		}
		var ignored *EventIgnored
		if errors.As(applyErr, &ignored) {
			if err := d.seq.Reject(id); err != nil {
				return nil, &Interrupted{Cause: err}
			}
			return nil, applyErr
		}
		return nil, &Interrupted{Cause: applyErr}
	}

	if err := d.seq.Accept(id); err != nil {
		return nil, &Interrupted{Cause: err}
	}

	if len(result.Proof.Updates) > 0 {
		payload, err := json.Marshal(result.Proof)
		if err != nil {
			return nil, &Interrupted{Cause: err}
		}
		if err := d.store.QueueProof(id, payload); err != nil {
			return nil, &Interrupted{Cause: err}
		}
	}

	return result.Outputs, nil
}
