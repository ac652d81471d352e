package verifier

import (
	"context"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"agentindex/internal/ledger"
	"agentindex/internal/pda"
)

const commitmentFinalized = rpc.CommitmentFinalized

// pdaKey pairs a derived address with the public key the ledger adapter
// actually fetches, resolved once up front so a malformed address fails
// that single row instead of the whole batch.
type pdaKey struct {
	key solana.PublicKey
	err error
}

func newPDAKey(a pda.Address) pdaKey {
	pk, err := a.PublicKey()
	return pdaKey{key: pk, err: err}
}

// probeExistence batch-probes every address via the ledger's account
// adapter (which already implements the chunk ≤100 + 3-attempt fallback
// contract, spec.md §4.5.2) and returns a parallel existence slice.
func (v *Verifier) probeExistence(ctx context.Context, addrs []pdaKey) ([]bool, error) {
	pubkeys := make([]solana.PublicKey, 0, len(addrs))
	for _, a := range addrs {
		if a.err != nil {
			log.Printf("[%s] skipping malformed address: %v", v.cfg.ServiceName, a.err)
			continue
		}
		pubkeys = append(pubkeys, a.key)
	}

	infos, err := v.ledger.FetchAccounts(ctx, pubkeys, commitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("verifier: probe existence: %w", err)
	}

	out := make([]bool, len(addrs))
	for i, a := range addrs {
		if a.err != nil {
			continue
		}
		info, ok := infos[a.key]
		out[i] = ok && info.Exists
	}
	return out, nil
}

func accountData(infos map[solana.PublicKey]*ledger.AccountInfo, pk solana.PublicKey) ([]byte, bool) {
	info, ok := infos[pk]
	if !ok || !info.Exists {
		return nil, false
	}
	return info.Data, true
}
