// Package chainclient batches queued proofs and submits them to the
// external settlement chain, retrying with backoff on failure. The
// actual on-chain call is behind the Submitter interface so the poll
// loop can be tested without a live chain connection.
package chainclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uinb/galois-go/internal/clock"
	"github.com/uinb/galois-go/internal/storage"
)

// Submitter sends a batch of already-serialized proofs to the chain
// and returns once they're included, or an error if the submission
// failed and should be retried.
type Submitter interface {
	Submit(ctx context.Context, proofs map[uint64][]byte) error
}

// Poller drains the proof queue on a fixed interval, submits each
// batch, and deletes confirmed proofs, retrying a failed batch with
// exponential backoff up to maxBackoff.
type Poller struct {
	store      *storage.Store
	submitter  Submitter
	log        *zap.Logger
	clock      clock.Clock
	batchLimit int
	interval   time.Duration
	maxBackoff time.Duration
}

func NewPoller(store *storage.Store, submitter Submitter, log *zap.Logger, c clock.Clock, batchLimit int, interval time.Duration) *Poller {
	return &Poller{
		store:      store,
		submitter:  submitter,
		log:        log,
		clock:      c,
		batchLimit: batchLimit,
		interval:   interval,
		maxBackoff: 10 * time.Second,
	}
}

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	backoff := p.interval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(backoff):
		}

		submitted, err := p.tick(ctx)
		if err != nil {
			p.log.Warn("chain submission failed, backing off", zap.Error(err), zap.Duration("backoff", backoff))
			backoff *= 2
			if backoff > p.maxBackoff {
				backoff = p.maxBackoff
			}
			continue
		}
		backoff = p.interval
		if submitted == 0 {
			continue
		}
		p.log.Info("submitted proofs to chain", zap.Int("count", submitted))
	}
}

func (p *Poller) tick(ctx context.Context) (int, error) {
	proofs, err := p.store.DequeueProofs(p.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("chainclient: dequeue proofs: %w", err)
	}
	if len(proofs) == 0 {
		return 0, nil
	}
	if err := p.submitter.Submit(ctx, proofs); err != nil {
		return 0, fmt.Errorf("chainclient: submit batch: %w", err)
	}
	for id := range proofs {
		if err := p.store.DeleteProof(id); err != nil {
			return 0, fmt.Errorf("chainclient: delete confirmed proof %d: %w", id, err)
		}
	}
	return len(proofs), nil
}

// NopSubmitter is the Submitter cmd/galois runs with: it logs each
// batch and reports success without contacting any chain.
type NopSubmitter struct {
	Log *zap.Logger
}

func (n NopSubmitter) Submit(ctx context.Context, proofs map[uint64][]byte) error {
	n.Log.Debug("dry-run: would submit proof batch", zap.Int("count", len(proofs)))
	return nil
}
