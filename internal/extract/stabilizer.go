package extract

import (
	"context"
	"sync"
	"time"

	"github.com/clausecheck/clausecheck/internal/models"
)

// Source yields text snapshots of a document that may still be loading.
type Source interface {
	// Snapshot extracts the current visible text. A degraded (short or
	// empty) snapshot is valid output, not an error.
	Snapshot(ctx context.Context) (text string, truncated bool, err error)
}

// Notifier is implemented by sources that can signal document change.
// Each receive on the channel means the document mutated since the last
// snapshot; the stop function tears the subscription down.
type Notifier interface {
	Watch(ctx context.Context) (changes <-chan struct{}, stop func())
}

// Options bound the stabilization wait.
type Options struct {
	// MinLength is the snapshot length that resolves the wait early.
	MinLength int
	// Debounce coalesces bursts of change notifications into one
	// re-extraction per interval.
	Debounce time.Duration
	// HardTimeout resolves the wait with whatever partial text was
	// extracted, even empty.
	HardTimeout time.Duration
}

// DefaultOptions mirror the tuning the extraction was built around:
// resolve once 100 chars are visible, re-check at most every 400ms,
// give up waiting after 3 seconds.
func DefaultOptions() Options {
	return Options{
		MinLength:   100,
		Debounce:    400 * time.Millisecond,
		HardTimeout: 3 * time.Second,
	}
}

// finalSnapshotTimeout bounds the one extra snapshot taken when the
// hard timeout fires, so a wedged source cannot hold resolution past
// hardTimeout plus this grace.
const finalSnapshotTimeout = 100 * time.Millisecond

// Stabilize waits for a document source to yield a usable snapshot. It
// resolves as soon as the extracted text reaches MinLength, or when the
// hard timeout elapses, whichever occurs first; the losing trigger is
// cancelled. Resolution happens exactly once. Stabilize never fails:
// extraction errors and timeouts degrade to a partial (possibly empty)
// snapshot.
func Stabilize(ctx context.Context, src Source, opts Options) models.ExtractedText {
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultOptions().MinLength
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	if opts.HardTimeout <= 0 {
		opts.HardTimeout = DefaultOptions().HardTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, opts.HardTimeout)
	defer cancel()

	var (
		mu        sync.Mutex
		last      string
		truncated bool
	)

	check := func() bool {
		text, trunc, err := src.Snapshot(ctx)
		if err != nil {
			return false
		}
		mu.Lock()
		last, truncated = text, trunc
		mu.Unlock()
		return len(text) >= opts.MinLength
	}

	finish := func() models.ExtractedText {
		mu.Lock()
		defer mu.Unlock()
		return models.ExtractedText{
			Content:    last,
			Truncated:  truncated,
			CapturedAt: time.Now(),
		}
	}

	if check() {
		return finish()
	}

	notifier, ok := src.(Notifier)
	if !ok {
		// Static source: nothing will change, resolve with what we have.
		return finish()
	}

	changes, stop := notifier.Watch(ctx)
	defer stop()

	debounce := time.NewTimer(opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			// Hard timeout (or caller cancellation): take one final
			// snapshot so late-arriving content still counts, under its
			// own short deadline so a wedged source cannot block forever.
			finalCtx, finalCancel := context.WithTimeout(context.WithoutCancel(ctx), finalSnapshotTimeout)
			text, trunc, err := src.Snapshot(finalCtx)
			finalCancel()
			if err == nil && len(text) > len(last) {
				mu.Lock()
				last, truncated = text, trunc
				mu.Unlock()
			}
			return finish()

		case _, open := <-changes:
			if !open {
				return finish()
			}
			if !pending {
				pending = true
				debounce.Reset(opts.Debounce)
			}

		case <-debounce.C:
			pending = false
			if check() {
				return finish()
			}
		}
	}
}
