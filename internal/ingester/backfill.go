package ingester

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"

	"agentindex/internal/ledger"
)

// backfill implements spec.md §4.2.2: a scan phase paginating backward
// to genesis recording only a checkpoint *signature* per page (never the
// page contents themselves), then a process phase that re-fetches the
// window between each adjacent checkpoint pair, oldest-first, one page
// at a time. Memory use during both phases is bounded by a page
// (p.cfg.BatchSize signatures), never by the total history. A single
// poller cycle runs both phases to completion; subsequent cycles see a
// non-empty cursor and switch to liveTick.
func (p *Poller) backfill(ctx context.Context) error {
	log.Printf("[%s] backfill: scanning", p.cfg.ServiceName)

	var checkpoints []solana.Signature
	var before *solana.Signature
	failures := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		page, err := p.ledger.ListSignatures(ctx, p.cfg.Program, ledger.ListSignaturesOptions{
			Before: before,
			Limit:  p.cfg.BatchSize,
		})
		if err != nil {
			failures++
			log.Printf("[%s] backfill: scan page failed (%d/%d): %v", p.cfg.ServiceName, failures, maxScanFailures, err)
			if failures >= maxScanFailures {
				return fmt.Errorf("ingester: backfill scan aborted after %d consecutive failures: %w", maxScanFailures, err)
			}
			sleepOrDone(ctx, time.Duration(1<<uint(failures))*time.Second)
			continue
		}
		failures = 0
		if len(page) == 0 {
			break
		}

		last := page[len(page)-1]
		checkpoints = append(checkpoints, last.Signature)
		before = &last.Signature
		log.Printf("[%s] backfill: checkpoint at slot %d (%d page boundaries so far)", p.cfg.ServiceName, last.Slot, len(checkpoints))

		if len(page) < p.cfg.BatchSize {
			// Short page: reached the start of the program's history.
			break
		}
	}

	log.Printf("[%s] backfill: replaying %d checkpoint window(s) oldest-first", p.cfg.ServiceName, len(checkpoints))
	return p.processCheckpointWindows(ctx, checkpoints)
}

// processCheckpointWindows replays the windows recorded during the scan
// phase, oldest window first. checkpoints[i] is the boundary between
// page i and the next, older page i+1; checkpoints[i-1] (or nil for the
// very first page) bounds the same window from above. The newest
// window's upper bound is open, so replaying it also picks up anything
// the program emitted since the scan finished, bridging straight into
// live-tail territory without a separate step.
func (p *Poller) processCheckpointWindows(ctx context.Context, checkpoints []solana.Signature) error {
	for i := len(checkpoints) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lower := checkpoints[i]
		var upper *solana.Signature
		if i > 0 {
			upper = &checkpoints[i-1]
		}

		if err := p.replayWindow(ctx, upper, &lower); err != nil {
			return fmt.Errorf("ingester: replay checkpoint window %d: %w", i, err)
		}
	}
	return nil
}

// replayWindow pages from before (exclusive, nil meaning the current
// head) down to and including until, processing one page at a time so
// memory use stays bounded no matter how large the window has grown
// since the scan phase recorded it.
func (p *Poller) replayWindow(ctx context.Context, before, until *solana.Signature) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		page, err := p.ledger.ListSignatures(ctx, p.cfg.Program, ledger.ListSignaturesOptions{
			Before: before,
			Until:  until,
			Limit:  p.cfg.BatchSize,
		})
		if err != nil {
			failures++
			log.Printf("[%s] backfill: window page failed (%d/%d): %v", p.cfg.ServiceName, failures, maxScanFailures, err)
			if failures >= maxScanFailures {
				return fmt.Errorf("window replay aborted after %d consecutive failures: %w", maxScanFailures, err)
			}
			sleepOrDone(ctx, time.Duration(1<<uint(failures))*time.Second)
			continue
		}
		failures = 0
		if len(page) == 0 {
			return nil
		}

		ordered := append([]ledger.SignatureInfo(nil), page...)
		reverseSignatures(ordered)
		if err := p.processOrdered(ctx, ordered); err != nil {
			return err
		}

		last := page[len(page)-1]
		before = &last.Signature

		if len(page) < p.cfg.BatchSize {
			return nil
		}
	}
}

func reverseSignatures(sigs []ledger.SignatureInfo) {
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
}
