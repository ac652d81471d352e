package ingester

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"agentindex/internal/ledger"
)

// resolveTxIndexes groups sigs by slot and assigns tx_index per spec.md
// §4.2.1: a single-transaction slot gets index 0 without a block fetch;
// a multi-transaction slot triggers one block fetch to enumerate true
// position. A repeated block-fetch failure leaves every signature in
// that slot with a nil tx_index (the NULL sentinel, never coalesced to
// 0).
func (p *Poller) resolveTxIndexes(ctx context.Context, sigs []ledger.SignatureInfo) []orderedSignature {
	bySlot := make(map[uint64][]ledger.SignatureInfo)
	slotOrder := make([]uint64, 0)
	for _, s := range sigs {
		if _, ok := bySlot[s.Slot]; !ok {
			slotOrder = append(slotOrder, s.Slot)
		}
		bySlot[s.Slot] = append(bySlot[s.Slot], s)
	}

	out := make([]orderedSignature, 0, len(sigs))
	for _, slot := range slotOrder {
		group := bySlot[slot]
		if len(group) == 1 {
			out = append(out, orderedSignature{Info: group[0], TxIndex: int32ptr(0)})
			continue
		}

		positions := p.blockPositions(ctx, slot)
		for _, s := range group {
			var idx *int32
			if pos, ok := positions[s.Signature]; ok {
				idx = int32ptr(int32(pos))
			}
			out = append(out, orderedSignature{Info: s, TxIndex: idx})
		}
	}
	return out
}

// blockPositions fetches the block at slot and returns each signature's
// enumerated position. Returns an empty map (every tx_index resolves to
// nil) if the fetch fails — the spec treats repeated fetch failure as a
// NULL tx_index, not a processing error.
func (p *Poller) blockPositions(ctx context.Context, slot uint64) map[solana.Signature]int {
	block, err := p.ledger.FetchBlock(ctx, slot)
	if err != nil || block == nil {
		return nil
	}
	positions := make(map[solana.Signature]int, len(block.Signatures))
	for i, sig := range block.Signatures {
		positions[sig] = i
	}
	return positions
}
