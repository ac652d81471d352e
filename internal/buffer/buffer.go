// Package buffer implements the event buffer: a bounded in-memory
// accumulator that batches decoded events into single-transaction
// flushes, with linear-backoff retry and a dead-letter queue for
// batches that never make it in (spec.md §4.3).
//
// Grounded on the teacher's internal/ingester/committer.go idiom:
// "[Component] message" log lines and a repository handed in at
// construction rather than a global. There is no background loop: a
// one-shot timer (time.AfterFunc), armed when the first event of a batch
// arrives, triggers the age-based flush. The reentrancy rule ("at most
// one in-flight flush") and the batch/timer trigger are new.
package buffer

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"agentindex/internal/decoder"
	"agentindex/internal/eventbus"
	"agentindex/internal/handlers"
	"agentindex/internal/repository"
)

const (
	maxBatchSize   = 500
	flushInterval  = 500 * time.Millisecond
	maxRetries     = 3
	retryBaseDelay = 1 * time.Second
	dlqCapacity    = 10_000
	dlqMaxAge      = 5 * time.Minute
	dlqWarnRatio   = 0.8
)

// Metrics is a snapshot of the buffer's observable counters (spec.md
// §4.3). Safe to copy.
type Metrics struct {
	EventsBuffered int64
	EventsFlushed  int64
	FlushCount     int64
	AvgFlushMillis float64
	DeadLettered   int64
}

// Buffer is safe for concurrent use. The zero value is not usable; use
// New.
type Buffer struct {
	repo   *repository.Repository
	source string
	onURI  func(asset, uri string)
	bus    *eventbus.Bus

	mu     sync.Mutex
	events []decoder.Event
	timer  *time.Timer

	metrics        Metrics
	totalFlushNanos int64
}

// New constructs a Buffer that writes through repo. source tags the
// cursor row written on each flush ("backfill" or "live").
func New(repo *repository.Repository, source string) *Buffer {
	return &Buffer{repo: repo, source: source}
}

// SetURIEnqueuer registers a callback invoked, after a batch commits
// successfully, once per AgentRegistered/UriUpdated event carrying a
// non-empty URI (spec.md §4.6: the URI worker is fed from the write
// path, not by polling the agents table).
func (b *Buffer) SetURIEnqueuer(fn func(asset, uri string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onURI = fn
}

// SetEventBus registers a bus that receives a "batch_committed"
// notification after each successful flush, letting the API layer
// invalidate its status cache without polling the database on a timer.
func (b *Buffer) SetEventBus(bus *eventbus.Bus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bus = bus
}

// SetSource updates the cursor-row source tag, used when the poller
// transitions from backfill to live tailing without recreating the
// buffer.
func (b *Buffer) SetSource(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.source = source
}

// Add appends an event to the pending batch. It starts the flush timer
// on the first entry and flushes immediately once the batch reaches
// maxBatchSize, per spec.md §4.3. The same mutex that guards the slice
// also serializes flush execution, which is what gives the buffer its
// "at most one in-flight flush" property for free.
func (b *Buffer) Add(ctx context.Context, evt decoder.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, evt)
	b.metrics.EventsBuffered++

	if len(b.events) == 1 {
		b.timer = time.AfterFunc(flushInterval, func() { b.flushOnTimer(ctx) })
	}
	if len(b.events) >= maxBatchSize {
		b.stopTimerLocked()
		b.flushLocked(ctx)
	}
}

func (b *Buffer) flushOnTimer(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return
	}
	b.flushLocked(ctx)
}

func (b *Buffer) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Flush drains the current batch synchronously. Exposed so the poller
// can force a flush on shutdown (spec.md §5 shutdown order): main stops
// the poll loop, then calls Poller.FlushBuffer, which calls this.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
	b.flushLocked(ctx)
}

// flushLocked must be called with b.mu held.
func (b *Buffer) flushLocked(ctx context.Context) {
	if len(b.events) == 0 {
		return
	}
	batch := b.events
	b.events = nil
	source := b.source

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = b.commit(ctx, batch, source)
		if lastErr == nil {
			break
		}
		log.Printf("[EventBuffer] flush attempt %d/%d failed: %v", attempt, maxRetries, lastErr)
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(retryBaseDelay * time.Duration(attempt)):
			continue
		}
		break
	}

	elapsed := time.Since(start)
	b.metrics.FlushCount++
	b.totalFlushNanos += elapsed.Nanoseconds()
	b.metrics.AvgFlushMillis = float64(b.totalFlushNanos) / float64(b.metrics.FlushCount) / float64(time.Millisecond)

	if lastErr == nil {
		b.metrics.EventsFlushed += int64(len(batch))
		b.notifyURIEnqueuer(batch)
		if b.bus != nil {
			b.bus.Publish(eventbus.Event{
				Type:      "batch_committed",
				Slot:      batch[len(batch)-1].Envelope().BlockSlot,
				Timestamp: time.Now(),
				Data:      len(batch),
			})
		}
		return
	}

	log.Printf("[EventBuffer] exhausted retries for batch of %d events, moving to dead-letter queue: %v", len(batch), lastErr)
	b.deadLetter(ctx, batch, lastErr)
}

func (b *Buffer) commit(ctx context.Context, batch []decoder.Event, source string) error {
	return b.repo.WithTx(ctx, func(tx pgx.Tx) error {
		for _, evt := range batch {
			if err := handlers.Dispatch(ctx, tx, evt); err != nil {
				return err
			}
		}
		env := batch[len(batch)-1].Envelope()
		return repository.UpdateCursorTx(ctx, tx, env.TxSignature, env.BlockSlot, source)
	})
}

// notifyURIEnqueuer must run only after batch has committed: enqueuing
// before commit could race the URI worker's freshness re-check against
// a write that hasn't landed yet.
func (b *Buffer) notifyURIEnqueuer(batch []decoder.Event) {
	if b.onURI == nil {
		return
	}
	for _, evt := range batch {
		switch e := evt.(type) {
		case decoder.AgentRegistered:
			if e.AgentURI != "" {
				b.onURI(e.Asset, e.AgentURI)
			}
		case decoder.UriUpdated:
			if e.URI != "" {
				b.onURI(e.Asset, e.URI)
			}
		}
	}
}

func (b *Buffer) deadLetter(ctx context.Context, batch []decoder.Event, cause error) {
	count, err := b.repo.CountDeadLetters(ctx)
	if err != nil {
		log.Printf("[EventBuffer] failed to check dead-letter queue size: %v", err)
		count = 0
	}
	if count >= dlqCapacity {
		evicted, evictErr := b.repo.EvictOldDeadLetters(ctx, dlqMaxAge)
		if evictErr != nil {
			log.Printf("[EventBuffer] failed to evict dead-letter queue: %v", evictErr)
		}
		count -= int(evicted)
	}

	for _, evt := range batch {
		if count >= dlqCapacity {
			log.Printf("[EventBuffer] dead-letter queue full (%d entries), dropping event %s", dlqCapacity, evt.Type())
			continue
		}
		payload, mErr := json.Marshal(evt)
		if mErr != nil {
			log.Printf("[EventBuffer] failed to encode dead-lettered event: %v", mErr)
			continue
		}
		if err := b.repo.InsertDeadLetter(ctx, string(evt.Type()), payload, cause.Error()); err != nil {
			log.Printf("[EventBuffer] failed to insert dead-letter entry: %v", err)
			continue
		}
		count++
		b.metrics.DeadLettered++
	}

	if ratio := float64(count) / float64(dlqCapacity); ratio >= dlqWarnRatio {
		log.Printf("[EventBuffer] dead-letter queue at %.0f%% capacity (%d/%d)", ratio*100, count, dlqCapacity)
	}
}

// Metrics returns a snapshot of the buffer's observable counters.
func (b *Buffer) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}
