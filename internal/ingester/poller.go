package ingester

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"agentindex/internal/buffer"
	"agentindex/internal/decoder"
	"agentindex/internal/ledger"
	"agentindex/internal/repository"
)

const (
	defaultBatchSize       = 1000
	defaultPollingInterval = 5 * time.Second
	memoryGuardGap         = 100_000
	progressLogInterval    = 60 * time.Second
	progressLogEveryTx     = 100
	maxScanFailures         = 5
)

// Config controls a Poller's behavior. Zero values fall back to the
// same defaults the teacher's ingester Config uses.
type Config struct {
	Program         solana.PublicKey
	PollingInterval time.Duration
	BatchSize       int
	ServiceName     string
}

func (c *Config) applyDefaults() {
	if c.PollingInterval == 0 {
		c.PollingInterval = defaultPollingInterval
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.ServiceName == "" {
		c.ServiceName = "Poller"
	}
}

// Poller drives backfill + live-tail ingestion (spec.md §4.2). It owns
// the cursor exclusively.
type Poller struct {
	ledger  *ledger.Client
	decoder decoder.Decoder
	repo    *repository.Repository
	buf     *buffer.Buffer
	cfg     Config

	running atomic.Bool

	processedCount int64
	errorCount     int64
	lastProgressAt time.Time
	source         string

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Poller. buf must not be nil: every decoded event is
// pushed onto the event buffer (batch mode, spec.md §4.2.4(a)).
func New(client *ledger.Client, dec decoder.Decoder, repo *repository.Repository, buf *buffer.Buffer, cfg Config) *Poller {
	cfg.applyDefaults()
	return &Poller{ledger: client, decoder: dec, repo: repo, buf: buf, cfg: cfg, done: make(chan struct{})}
}

// Start runs the poll loop until Stop is called or ctx is cancelled.
// It blocks; callers should run it in its own goroutine.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running.Store(true)
	defer close(p.done)

	log.Printf("[%s] starting", p.cfg.ServiceName)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s] stopping", p.cfg.ServiceName)
			return
		default:
		}
		if !p.running.Load() {
			return
		}

		if err := p.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[%s] cycle error: %v", p.cfg.ServiceName, err)
			p.errorCount++
			sleepOrDone(ctx, 10*time.Second)
			continue
		}
		p.logProgressIfDue(true)
		sleepOrDone(ctx, p.cfg.PollingInterval)
	}
}

// Stop signals the loop to exit and waits for it to do so. It does not
// flush the buffer; callers flush explicitly per the shutdown order in
// spec.md §5.
func (p *Poller) Stop() {
	p.running.Store(false)
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

// FlushBuffer drains any pending events. Called by the caller as the
// last poller-owned step of shutdown.
func (p *Poller) FlushBuffer(ctx context.Context) {
	p.buf.Flush(ctx)
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// tick runs one cycle: backfill if the cursor is empty, otherwise one
// live-tail step.
func (p *Poller) tick(ctx context.Context) error {
	cursor, err := p.repo.GetCursor(ctx)
	if err != nil {
		return fmt.Errorf("ingester: read cursor: %w", err)
	}
	if cursor.LastSignature == "" {
		p.source = "backfill"
		p.buf.SetSource(p.source)
		return p.backfill(ctx)
	}
	p.source = "live"
	p.buf.SetSource(p.source)
	return p.liveTick(ctx, cursor)
}

// processOrdered resolves tx_index, sorts, and pushes every decoded
// event from each signature onto the event buffer in canonical order
// (spec.md §4.2.4).
func (p *Poller) processOrdered(ctx context.Context, sigs []ledger.SignatureInfo) error {
	if len(sigs) == 0 {
		return nil
	}
	ordered := p.resolveTxIndexes(ctx, sigs)
	sortOrdered(ordered)

	for _, os := range ordered {
		if err := p.processOne(ctx, os); err != nil {
			log.Printf("[%s] skipping signature %s: %v", p.cfg.ServiceName, os.Info.Signature, err)
			p.errorCount++
			continue
		}
		p.processedCount++
		p.logProgressIfDue(false)
	}
	return nil
}

func (p *Poller) processOne(ctx context.Context, os orderedSignature) error {
	if os.Info.Err != nil {
		// The transaction itself failed on-chain; it still counts as seen
		// but emits no events.
		return nil
	}

	tx, err := p.ledger.FetchTransaction(ctx, os.Info.Signature)
	if err != nil {
		return fmt.Errorf("fetch transaction: %w", err)
	}
	if tx == nil {
		return nil
	}

	env := decoder.Envelope{BlockSlot: os.Info.Slot, TxIndex: os.TxIndex, TxSignature: os.Info.Signature.String()}
	events, err := p.decoder.Decode(env, tx)
	if err != nil {
		// Malformed input: log, skip the single event; the transaction is
		// still counted as seen (spec.md §7).
		log.Printf("[%s] decode error for %s: %v", p.cfg.ServiceName, os.Info.Signature, err)
	}
	for _, evt := range events {
		p.buf.Add(ctx, evt)
	}

	// Advance the processed frontier even when a signature produced no
	// events, so a run of uninteresting transactions can't stall the
	// cursor behind the buffer's own event-driven updates.
	if err := p.repo.UpdateCursor(ctx, os.Info.Signature.String(), os.Info.Slot, p.source); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

func (p *Poller) logProgressIfDue(force bool) {
	now := time.Now()
	if !force && p.processedCount%progressLogEveryTx != 0 {
		if now.Sub(p.lastProgressAt) < progressLogInterval {
			return
		}
	}
	log.Printf("[%s] processed=%d errors=%d", p.cfg.ServiceName, p.processedCount, p.errorCount)
	p.lastProgressAt = now
}

// commitmentForHead is the poller's head commitment: confirmed, matching
// spec.md §4.1's usage split (the poller trails confirmed state; only
// the verifier reconciles against finalized).
const commitmentForHead = rpc.CommitmentConfirmed
