package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/mediaup/internal/compress"
	"github.com/dmitrijs2005/mediaup/internal/logging"
	"github.com/dmitrijs2005/mediaup/internal/models"
)

// Sink is where the orchestrator records every state transition. The
// session coordinator implements it: the mutation runs under the session
// lock, the whole session is persisted before control returns, and a
// progress event is published.
//
// Apply reports false when the mutation was refused because the item is
// already terminal. This is the guard that keeps a late transport result
// from resurrecting an aborted item.
type Sink interface {
	Apply(ctx context.Context, itemID string, fn func(*models.UploadItem)) (bool, error)
}

// errItemAborted stops a retry loop once the item has been aborted from
// outside; it never leaves the orchestrator.
var errItemAborted = errors.New("item aborted")

// Orchestrator drives one item through compression, the ordered transport
// tiers and completion. Item-level failures never escape: they are
// captured into the item state so one item's failure cannot abort a
// sibling's progress.
type Orchestrator struct {
	policy  compress.Policy
	worker  *compress.Worker
	tiers   []Tier
	backoff Backoff
	sink    Sink
	log     logging.Logger

	// readSource is swappable in tests; defaults to reading Source.Path.
	readSource func(models.SourceFile) ([]byte, error)
}

// NewOrchestrator wires the pipeline pieces together. The tiers slice is
// walked in order: index 0 is the primary transport.
func NewOrchestrator(policy compress.Policy, worker *compress.Worker, tiers []Tier, backoff Backoff, sink Sink, log logging.Logger) *Orchestrator {
	return &Orchestrator{
		policy:  policy,
		worker:  worker,
		tiers:   tiers,
		backoff: backoff,
		sink:    sink,
		log:     log,
		readSource: func(src models.SourceFile) ([]byte, error) {
			return os.ReadFile(src.Path)
		},
	}
}

// Run processes a single item to a terminal state.
//
// ctx is the item-scoped context: canceling it stops compression and any
// backoff wait. transportCtx is the session context: transport attempts
// run on it (plus the tier timeout) so that canceling an item does not
// tear down a network call already in flight; a result arriving after
// cancellation is discarded by the sink's terminal guard.
//
// The returned error is a pipeline fault (persistence failure); item-level
// upload failures are recorded in the item and return nil.
func (o *Orchestrator) Run(ctx, transportCtx context.Context, itemID string, src models.SourceFile) error {
	log := o.log.With("item", itemID, "file", src.Name)

	data, err := o.readSource(src)
	if err != nil {
		// No local bytes, nothing a transport could do.
		log.Warn(ctx, "cannot read source file", "err", err)
		_, aerr := o.sink.Apply(transportCtx, itemID, func(it *models.UploadItem) {
			it.Status = models.StatusFailed
			it.Error = fmt.Sprintf("read source: %v", err)
		})
		return aerr
	}

	compressionApplied := false
	if profile, ok := o.policy.Decide(src.Size, src.MIME); ok {
		applied, aerr := o.sink.Apply(transportCtx, itemID, func(it *models.UploadItem) {
			it.Status = models.StatusCompressing
			it.Progress = 0
		})
		if aerr != nil {
			return aerr
		}
		if !applied {
			return nil
		}

		res, cerr := o.worker.Compress(ctx, data, profile, func(p int) {
			_, _ = o.sink.Apply(transportCtx, itemID, func(it *models.UploadItem) {
				if p > it.Progress {
					it.Progress = p
				}
			})
		})
		if cerr != nil {
			// Canceled mid-compression; the coordinator has already
			// marked the item.
			return nil
		}
		data = res.Bytes
		compressionApplied = res.Applied
	}

	var lastErr string
	for _, tier := range o.tiers {
		res, uerr := o.uploadTier(ctx, transportCtx, itemID, tier, src, data, compressionApplied)
		if uerr == nil {
			applied, aerr := o.sink.Apply(transportCtx, itemID, func(it *models.UploadItem) {
				it.Status = models.StatusSucceeded
				it.Progress = 100
				it.RemoteID = res.RemoteID
				it.RemoteURL = res.RemoteURL
				it.Error = ""
			})
			if aerr != nil {
				return aerr
			}
			if !applied {
				log.Info(ctx, "discarding transport result for aborted item", "tier", tier.Transport.Name())
			}
			return nil
		}
		if errors.Is(uerr, errItemAborted) || ctx.Err() != nil {
			return nil
		}
		var sinkErr *sinkFailure
		if errors.As(uerr, &sinkErr) {
			return sinkErr.err
		}

		lastErr = uerr.Error()
		log.Warn(ctx, "transport tier exhausted", "tier", tier.Transport.Name(), "err", uerr)
	}

	_, aerr := o.sink.Apply(transportCtx, itemID, func(it *models.UploadItem) {
		it.Status = models.StatusFailed
		it.Error = lastErr
	})
	return aerr
}

// sinkFailure wraps persistence errors so the retry loop can surface them
// as pipeline faults rather than transport failures.
type sinkFailure struct {
	err error
}

func (e *sinkFailure) Error() string { return e.err.Error() }
func (e *sinkFailure) Unwrap() error { return e.err }

// uploadTier runs up to tier.MaxAttempts transport calls with an
// attempt-scaled, capped backoff between them. The backoff wait runs on
// the item context; the transport call runs on the session context plus
// the tier timeout.
func (o *Orchestrator) uploadTier(ctx, transportCtx context.Context, itemID string, tier Tier, src models.SourceFile, body []byte, compressionApplied bool) (*Result, error) {
	maxAttempts := tier.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result *Result
	attemptInTier := 0

	b := retry.WithCappedDuration(o.backoff.Max, retry.BackoffFunc(func() (time.Duration, bool) {
		return o.backoff.Base * time.Duration(attemptInTier), false
	}))
	b = retry.WithMaxRetries(uint64(maxAttempts-1), b)

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attemptInTier++

		applied, aerr := o.sink.Apply(transportCtx, itemID, func(it *models.UploadItem) {
			it.Status = models.StatusUploading
			it.Progress = 0
			it.Attempt++
			it.CompressionApplied = compressionApplied
		})
		if aerr != nil {
			return &sinkFailure{err: aerr}
		}
		if !applied {
			return errItemAborted
		}

		attemptCtx, cancel := context.WithTimeout(transportCtx, tier.Timeout)
		res, uerr := tier.Transport.Upload(attemptCtx, src, body)
		cancel()
		if uerr == nil {
			result = res
			return nil
		}

		if IsPermanent(uerr) {
			// Short-circuit the remaining attempts of this tier.
			_, _ = o.sink.Apply(transportCtx, itemID, func(it *models.UploadItem) {
				it.Error = uerr.Error()
			})
			return uerr
		}

		if attemptInTier < maxAttempts {
			applied, aerr := o.sink.Apply(transportCtx, itemID, func(it *models.UploadItem) {
				it.Status = models.StatusRetrying
				it.Progress = 0
				it.Error = uerr.Error()
			})
			if aerr != nil {
				return &sinkFailure{err: aerr}
			}
			if !applied {
				return errItemAborted
			}
		} else {
			_, _ = o.sink.Apply(transportCtx, itemID, func(it *models.UploadItem) {
				it.Error = uerr.Error()
			})
		}

		return retry.RetryableError(uerr)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
