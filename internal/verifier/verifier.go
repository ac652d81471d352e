// Package verifier reconciles PENDING rows against finalized ledger
// state: existence checks for identity rows (agents, validations,
// metadata, collections) and hash-chain comparisons for feedback/
// response/revoke chains (spec.md §4.5).
//
// Grounded on the teacher's internal/ingester/committer.go: a ticker
// loop started in its own goroutine, "[Component] message" logging, one
// step-function per tick.
package verifier

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"agentindex/internal/ledger"
	"agentindex/internal/models"
	"agentindex/internal/pda"
	"agentindex/internal/repository"
)

// Config controls verifier cadence and batching. Zero values fall back
// to spec.md §6.7's defaults.
type Config struct {
	Interval          time.Duration
	BatchSize         int
	SafetyMarginSlots uint64
	MaxRetries        int
	ProgramID         string
	ServiceName       string
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = 60 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 200
	}
	if c.SafetyMarginSlots == 0 {
		c.SafetyMarginSlots = 32
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.ServiceName == "" {
		c.ServiceName = "Verifier"
	}
}

// Verifier runs the reconciliation cycle on a fixed interval.
type Verifier struct {
	ledger *ledger.Client
	repo   *repository.Repository
	cfg    Config

	mu chan struct{} // 1-buffered semaphore implementing the single-latch guard
}

// New constructs a Verifier.
func New(client *ledger.Client, repo *repository.Repository, cfg Config) *Verifier {
	cfg.applyDefaults()
	v := &Verifier{ledger: client, repo: repo, cfg: cfg, mu: make(chan struct{}, 1)}
	v.mu <- struct{}{}
	return v
}

// Start runs the reconciliation loop until ctx is cancelled. It blocks;
// callers should run it in its own goroutine, matching the teacher's
// CheckpointCommitter.Start/runLoop split.
func (v *Verifier) Start(ctx context.Context) {
	log.Printf("[%s] starting (interval=%s safety_margin=%d)", v.cfg.ServiceName, v.cfg.Interval, v.cfg.SafetyMarginSlots)
	ticker := time.NewTicker(v.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s] stopping", v.cfg.ServiceName)
			return
		case <-ticker.C:
			v.runCycle(ctx)
		}
	}
}

// runCycle enforces the single-latch concurrency guard (spec.md §4.5.4)
// then reconciles every verifiable table.
func (v *Verifier) runCycle(ctx context.Context) {
	select {
	case <-v.mu:
	default:
		log.Printf("[%s] previous cycle still running, skipping", v.cfg.ServiceName)
		return
	}
	defer func() { v.mu <- struct{}{} }()

	head, err := v.ledger.Head(ctx, rpc.CommitmentFinalized)
	if err != nil {
		log.Printf("[%s] cycle aborted: head fetch failed: %v", v.cfg.ServiceName, err)
		return
	}
	cutoff := uint64(0)
	if head > v.cfg.SafetyMarginSlots {
		cutoff = head - v.cfg.SafetyMarginSlots
	}

	if n, err := v.repo.AutoFinalizeURIMetadata(ctx); err != nil {
		log.Printf("[%s] auto-finalize _uri metadata failed: %v", v.cfg.ServiceName, err)
	} else if n > 0 {
		log.Printf("[%s] auto-finalized %d URI metadata rows", v.cfg.ServiceName, n)
	}

	// Agent/validation/metadata/collection sub-verifications are
	// independent reads and writes against disjoint tables, so they run
	// concurrently (spec.md §4.5.4: "sub-verifications run concurrently
	// and independently") instead of one after another.
	var wg sync.WaitGroup
	for _, step := range []func(context.Context, uint64){
		v.verifyAgents,
		v.verifyValidations,
		v.verifyMetadata,
		v.verifyCollections,
	} {
		wg.Add(1)
		go func(step func(context.Context, uint64)) {
			defer wg.Done()
			step(ctx, cutoff)
		}(step)
	}
	wg.Wait()

	log.Printf("[%s] cycle complete (cutoff slot %d)", v.cfg.ServiceName, cutoff)
}

func (v *Verifier) verifyValidations(ctx context.Context, cutoff uint64) {
	pending, err := v.repo.PendingValidations(ctx, cutoff, v.cfg.BatchSize)
	if err != nil {
		log.Printf("[%s] list pending validations: %v", v.cfg.ServiceName, err)
		return
	}
	if len(pending) == 0 {
		return
	}

	addrs := make([]pdaKey, 0, len(pending))
	for _, row := range pending {
		addrs = append(addrs, newPDAKey(pda.Validation(v.cfg.ProgramID, row.Asset, row.Validator, row.Nonce)))
	}
	existence, err := v.probeExistence(ctx, addrs)
	if err != nil {
		log.Printf("[%s] probe validations: %v", v.cfg.ServiceName, err)
		return
	}

	for i, row := range pending {
		status := models.StatusOrphaned
		if existence[i] {
			status = models.StatusFinalized
		}
		if err := v.repo.MarkValidationStatus(ctx, row.Asset, row.Validator, row.Nonce, status); err != nil {
			log.Printf("[%s] mark validation %s/%s/%d: %v", v.cfg.ServiceName, row.Asset, row.Validator, row.Nonce, err)
		}
	}
}

func (v *Verifier) verifyMetadata(ctx context.Context, cutoff uint64) {
	pending, err := v.repo.PendingMetadataEntries(ctx, cutoff, v.cfg.BatchSize)
	if err != nil {
		log.Printf("[%s] list pending metadata: %v", v.cfg.ServiceName, err)
		return
	}
	if len(pending) == 0 {
		return
	}

	addrs := make([]pdaKey, 0, len(pending))
	for _, row := range pending {
		addrs = append(addrs, newPDAKey(pda.Metadata(v.cfg.ProgramID, row.Asset, row.Key)))
	}
	existence, err := v.probeExistence(ctx, addrs)
	if err != nil {
		log.Printf("[%s] probe metadata: %v", v.cfg.ServiceName, err)
		return
	}

	for i, row := range pending {
		status := models.StatusOrphaned
		if existence[i] {
			status = models.StatusFinalized
		}
		if err := v.repo.MarkMetadataStatus(ctx, row.Asset, row.Key, status); err != nil {
			log.Printf("[%s] mark metadata %s/%s: %v", v.cfg.ServiceName, row.Asset, row.Key, err)
		}
	}
}

func (v *Verifier) verifyCollections(ctx context.Context, cutoff uint64) {
	pending, err := v.repo.PendingCollections(ctx, cutoff, v.cfg.BatchSize)
	if err != nil {
		log.Printf("[%s] list pending collections: %v", v.cfg.ServiceName, err)
		return
	}
	if len(pending) == 0 {
		return
	}

	addrs := make([]pdaKey, 0, len(pending))
	for _, row := range pending {
		addrs = append(addrs, newPDAKey(pda.RegistryConfig(v.cfg.ProgramID, row.Collection)))
	}
	existence, err := v.probeExistence(ctx, addrs)
	if err != nil {
		log.Printf("[%s] probe collections: %v", v.cfg.ServiceName, err)
		return
	}

	for i, row := range pending {
		status := models.StatusOrphaned
		if existence[i] {
			status = models.StatusFinalized
		}
		if err := v.repo.MarkCollectionStatus(ctx, row.Collection, status); err != nil {
			log.Printf("[%s] mark collection %s: %v", v.cfg.ServiceName, row.Collection, err)
		}
	}
}
