package ingester

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"agentindex/internal/ledger"
	"agentindex/internal/models"
)

// liveTick implements spec.md §4.2.3: page backward from the head until
// the cursor's last-seen signature is reached (or a short page signals
// no more history), with a memory guard that checkpoints progress via
// pending_continuation/pending_stop_signature if the gap since the
// cursor exceeds memoryGuardGap signatures.
func (p *Poller) liveTick(ctx context.Context, cursor models.Cursor) error {
	before, until, err := resumePoint(cursor)
	if err != nil {
		return fmt.Errorf("ingester: parse cursor signatures: %w", err)
	}

	var collected []ledger.SignatureInfo
	for {
		page, err := p.ledger.ListSignatures(ctx, p.cfg.Program, ledger.ListSignaturesOptions{
			Before: before,
			Until:  until,
			Limit:  p.cfg.BatchSize,
		})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		for _, s := range page {
			if s.Err == nil {
				collected = append(collected, s)
			}
		}
		last := page[len(page)-1].Signature
		before = &last

		if len(collected) > memoryGuardGap {
			stopSig := cursor.LastSignature
			if cursor.PendingStopSignature != "" {
				stopSig = cursor.PendingStopSignature
			}
			if err := p.repo.SavePendingContinuation(ctx, before.String(), stopSig); err != nil {
				return fmt.Errorf("save pending continuation: %w", err)
			}
			reverseSignatures(collected)
			return p.processOrdered(ctx, collected)
		}

		if len(page) < p.cfg.BatchSize {
			break
		}
	}

	if cursor.PendingContinuation != "" {
		if err := p.repo.ClearPendingContinuation(ctx); err != nil {
			return fmt.Errorf("clear pending continuation: %w", err)
		}
	}

	reverseSignatures(collected)
	return p.processOrdered(ctx, collected)
}

// resumePoint resolves the (before, until) pagination window for this
// tick: a saved memory-guard checkpoint takes priority over the plain
// cursor.
func resumePoint(cursor models.Cursor) (before, until *solana.Signature, err error) {
	if cursor.PendingContinuation != "" {
		b, err := solana.SignatureFromBase58(cursor.PendingContinuation)
		if err != nil {
			return nil, nil, err
		}
		u, err := solana.SignatureFromBase58(cursor.PendingStopSignature)
		if err != nil {
			return nil, nil, err
		}
		return &b, &u, nil
	}
	if cursor.LastSignature != "" {
		u, err := solana.SignatureFromBase58(cursor.LastSignature)
		if err != nil {
			return nil, nil, err
		}
		return nil, &u, nil
	}
	return nil, nil, nil
}
