package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

func timeAfterSeconds(secs int) <-chan time.Time {
	return time.After(time.Duration(secs) * time.Second)
}

// batchChunkSize bounds how many items we ask for in a single batched
// RPC call before degrading to per-item fetch (spec.md §4.1: "bounded
// chunk size ≈ 100; degrade to per-item on batch failure").
const batchChunkSize = 100

// ParsedTransaction is the ledger-side view of a transaction handed to
// the decoder: enough to resolve ordering (Slot) and to read program
// logs / account keys, without committing the indexer to the exact
// shape of the Solana SDK's transaction envelope.
type ParsedTransaction struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *int64
	Err       error // non-nil if the transaction failed on-chain
	Logs      []string
	Accounts  []solana.PublicKey
	Raw       *rpc.GetTransactionResult
}

// FetchTransaction fetches one transaction. Returns (nil, nil) if the
// ledger doesn't have it (pruned, not yet confirmed, or never existed).
func (c *Client) FetchTransaction(ctx context.Context, sig solana.Signature) (*ParsedTransaction, error) {
	var out *ParsedTransaction
	err := c.withRetry(ctx, func() error {
		maxVersion := uint64(0)
		res, err := c.pick().GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil {
			if err == rpc.ErrNotFound {
				out = nil
				return nil
			}
			return err
		}
		out = parseResult(sig, res)
		return nil
	})
	return out, err
}

func parseResult(sig solana.Signature, res *rpc.GetTransactionResult) *ParsedTransaction {
	if res == nil {
		return nil
	}
	pt := &ParsedTransaction{
		Signature: sig,
		Slot:      res.Slot,
		BlockTime: unixPtr(res.BlockTime),
		Raw:       res,
	}
	if res.Meta != nil {
		pt.Logs = res.Meta.LogMessages
		if res.Meta.Err != nil {
			pt.Err = fmt.Errorf("%v", res.Meta.Err)
		}
	}
	if tx, err := res.Transaction.GetTransaction(); err == nil && tx != nil {
		pt.Accounts = tx.Message.AccountKeys
	}
	return pt
}

// FetchTransactions batch-fetches transactions in chunks of up to
// batchChunkSize, degrading to per-item fetch for any chunk that fails
// wholesale (spec.md §4.1, §6.1). A signature that still fails per-item
// is left out of the map; the first such error is returned with it.
func (c *Client) FetchTransactions(ctx context.Context, sigs []solana.Signature) (map[solana.Signature]*ParsedTransaction, error) {
	out := make(map[solana.Signature]*ParsedTransaction, len(sigs))
	var firstErr error

	for start := 0; start < len(sigs); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(sigs) {
			end = len(sigs)
		}
		chunk := sigs[start:end]

		if err := c.fetchChunk(ctx, chunk, out); err != nil {
			// Batch failed wholesale: degrade to per-item fetch so one bad
			// signature in the chunk doesn't take the rest down with it.
			for _, sig := range chunk {
				tx, err := c.FetchTransaction(ctx, sig)
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("fetch transaction %s (per-item fallback): %w", sig, err)
					}
					continue
				}
				if tx != nil {
					out[sig] = tx
				}
			}
		}
	}
	return out, firstErr
}

// fetchChunk has no native Solana "batch getTransaction" RPC method, so
// "batch" here means "fetch this chunk's signatures one after another,
// but as a unit that either all succeeds or triggers the caller's
// per-item fallback" — the solana-go SDK doesn't expose a multi-get for
// transactions the way it does for accounts (GetMultipleAccounts).
func (c *Client) fetchChunk(ctx context.Context, chunk []solana.Signature, out map[solana.Signature]*ParsedTransaction) error {
	for _, sig := range chunk {
		tx, err := c.FetchTransaction(ctx, sig)
		if err != nil {
			return err
		}
		if tx != nil {
			out[sig] = tx
		}
	}
	return nil
}

// BlockInfo is the subset of block data the poller needs to resolve
// tx_index for multi-transaction slots (spec.md §4.2.1).
type BlockInfo struct {
	Slot         uint64
	Signatures   []solana.Signature // enumerated order == tx_index within the block
}

// FetchBlock fetches a block's ordered signature list, used only to
// establish tx_index when a slot contains more than one indexed
// transaction (spec.md §4.1, §4.2.1: a single-tx slot must not trigger
// a block fetch at all).
func (c *Client) FetchBlock(ctx context.Context, slot uint64) (*BlockInfo, error) {
	var out *BlockInfo
	err := c.withRetry(ctx, func() error {
		maxVersion := uint64(0)
		rewards := false
		res, err := c.pick().GetBlockWithOpts(ctx, slot, &rpc.GetBlockOpts{
			Encoding:                       solana.EncodingBase64,
			TransactionDetails:             rpc.TransactionDetailsSignatures,
			Rewards:                        &rewards,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil {
			return err
		}
		if res == nil {
			out = nil
			return nil
		}
		sigs := make([]solana.Signature, 0, len(res.Signatures))
		sigs = append(sigs, res.Signatures...)
		out = &BlockInfo{Slot: slot, Signatures: sigs}
		return nil
	})
	return out, err
}

// AccountInfo is the subset of on-chain account data the verifier needs:
// whether the account exists and its raw data for hash-chain decoding
// (spec.md §6.3).
type AccountInfo struct {
	Exists bool
	Data   []byte
}

// FetchAccount fetches a single account at the given commitment. A
// non-existent account is reported via Exists=false, not an error.
func (c *Client) FetchAccount(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (*AccountInfo, error) {
	var out *AccountInfo
	err := c.withRetry(ctx, func() error {
		res, err := c.pick().GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
			Commitment: commitment,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			if err == rpc.ErrNotFound {
				out = &AccountInfo{Exists: false}
				return nil
			}
			return err
		}
		if res == nil || res.Value == nil {
			out = &AccountInfo{Exists: false}
			return nil
		}
		out = &AccountInfo{Exists: true, Data: res.Value.Data.GetBinary()}
		return nil
	})
	return out, err
}

// FetchAccounts batch-probes accounts in chunks of up to batchChunkSize
// via getMultipleAccounts, falling back to a 3-attempt per-account retry
// with exponential backoff (1s, 2s, 4s) only when the batch call itself
// throws (spec.md §4.5.2).
func (c *Client) FetchAccounts(ctx context.Context, pubkeys []solana.PublicKey, commitment rpc.CommitmentType) (map[solana.PublicKey]*AccountInfo, error) {
	out := make(map[solana.PublicKey]*AccountInfo, len(pubkeys))

	for start := 0; start < len(pubkeys); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(pubkeys) {
			end = len(pubkeys)
		}
		chunk := pubkeys[start:end]

		var res *rpc.GetMultipleAccountsResult
		err := c.withRetry(ctx, func() error {
			r, err := c.pick().GetMultipleAccountsWithOpts(ctx, chunk, &rpc.GetMultipleAccountsOpts{
				Commitment: commitment,
				Encoding:   solana.EncodingBase64,
			})
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		if err != nil {
			// Batch throws: fall back to per-account retry with fixed
			// exponential backoff, as specced.
			for _, pk := range chunk {
				info, fallbackErr := c.fetchAccountWithFallbackRetry(ctx, pk, commitment)
				if fallbackErr != nil {
					return out, fmt.Errorf("fetch account %s (fallback): %w", pk, fallbackErr)
				}
				out[pk] = info
			}
			continue
		}

		if res == nil {
			continue
		}
		for i, val := range res.Value {
			pk := chunk[i]
			if val == nil {
				out[pk] = &AccountInfo{Exists: false}
				continue
			}
			out[pk] = &AccountInfo{Exists: true, Data: val.Data.GetBinary()}
		}
	}
	return out, nil
}

// fetchAccountWithFallbackRetry is the 3-attempt (1s, 2s, 4s) fallback
// path used only when batch probing fails (spec.md §4.5.2).
func (c *Client) fetchAccountWithFallbackRetry(ctx context.Context, pk solana.PublicKey, commitment rpc.CommitmentType) (*AccountInfo, error) {
	delays := []int{1, 2, 4}
	var lastErr error
	for _, secs := range delays {
		info, err := c.FetchAccount(ctx, pk, commitment)
		if err == nil {
			return info, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeAfterSeconds(secs):
		}
	}
	return nil, lastErr
}
