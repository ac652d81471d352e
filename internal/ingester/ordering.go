// Package ingester drives backfill and live-tail polling over the
// program's signature stream: it resolves tx_index per slot, maintains
// the cursor, and feeds decoded events to the event buffer.
//
// Grounded on the teacher's internal/ingester/service.go: a Config
// struct with env-style defaults, a Start loop selecting on ctx.Done,
// "[Component] message" progress logging, and sleep-based backoff on
// error rather than a dedicated retry library (matching the teacher's
// own choice for this exact loop).
package ingester

import (
	"sort"

	"agentindex/internal/ledger"
	"agentindex/internal/models"
)

// orderedSignature is one signature with its tx_index resolved, ready
// for the canonical sort (spec.md §4.2.1).
type orderedSignature struct {
	Info    ledger.SignatureInfo
	TxIndex *int32
}

// sortOrdered sorts in place by (block_slot ASC, tx_index ASC NULLS
// LAST, tx_signature ASC) — the single comparator every handler, view,
// and backfill path must agree on.
func sortOrdered(sigs []orderedSignature) {
	sort.SliceStable(sigs, func(i, j int) bool {
		a, b := sigs[i], sigs[j]
		if a.Info.Slot != b.Info.Slot {
			return a.Info.Slot < b.Info.Slot
		}
		ai, bi := models.TxIndexOrSentinel(a.TxIndex), models.TxIndexOrSentinel(b.TxIndex)
		if ai != bi {
			return ai < bi
		}
		return a.Info.Signature.String() < b.Info.Signature.String()
	})
}

func int32ptr(v int32) *int32 { return &v }
