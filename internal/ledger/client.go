// Package ledger adapts a pool of Solana JSON-RPC endpoints to the
// capability set the indexer needs: signature listing, transaction
// fetch (single + batch), block fetch (for tx_index resolution), and
// account fetch (single + batch), per spec.md §4.1/§6.1.
//
// Shaped directly on the teacher's internal/flow/client.go: a small pool
// of endpoints, a shared rate limiter, and a withRetry helper that only
// retries transport-shaped failures (timeouts, 5xx-equivalents,
// connection resets) and surfaces everything else unmasked so callers
// can tell a transient failure from a permanent one.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// Client wraps one or more Solana RPC endpoints behind the capability
// set described in spec.md §4.1. It is safe for concurrent use.
type Client struct {
	endpoints []*rpc.Client
	nodes     []string
	limiter   *rate.Limiter
	rr        uint32
}

// Config controls how the client pool is constructed.
type Config struct {
	Endpoints []string
	// RPS caps total requests/second across the whole pool. Zero disables
	// throttling (not recommended against a shared public RPC node).
	RPS   float64
	Burst int
}

// New dials every configured endpoint. At least one must succeed.
func New(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("ledger: no RPC endpoints configured")
	}

	var clients []*rpc.Client
	var nodes []string
	for _, ep := range cfg.Endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		clients = append(clients, rpc.New(ep))
		nodes = append(nodes, ep)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("ledger: no usable RPC endpoints after filtering")
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = int(cfg.RPS)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{endpoints: clients, nodes: nodes, limiter: limiter}, nil
}

func (c *Client) pick() *rpc.Client {
	n := atomic.AddUint32(&c.rr, 1)
	return c.endpoints[int(n)%len(c.endpoints)]
}

// Close releases pool resources. rpc.Client has no explicit close in the
// SDK; this exists so callers have a single shutdown hook regardless of
// transport.
func (c *Client) Close() error {
	return nil
}

// isRetryable classifies a transport-shaped failure as safe to retry.
// Anything else (malformed request, not-found, decode failure) is
// returned unmasked so callers can treat it as a permanent failure per
// spec.md §7 ("Transient transport" vs other kinds).
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return true
	case strings.Contains(msg, "context deadline exceeded"):
		return true
	case strings.Contains(msg, "connection reset"):
		return true
	case strings.Contains(msg, "econnrefused"):
		return true
	case strings.Contains(msg, "too many requests"):
		return true
	case strings.Contains(msg, "503"), strings.Contains(msg, "502"), strings.Contains(msg, "500"):
		return true
	case strings.Contains(msg, "eof"):
		return true
	default:
		return false
	}
}

// withRetry runs fn with exponential backoff (bounded attempts) on
// retryable transport errors, respecting the shared rate limiter and
// ctx cancellation between attempts.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 4 * time.Second
	bo.MaxElapsedTime = 15 * time.Second
	bctx := backoff.WithContext(bo, ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bctx)
}

// Head returns the current slot at the given commitment level.
func (c *Client) Head(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	var slot uint64
	err := c.withRetry(ctx, func() error {
		s, err := c.pick().GetSlot(ctx, commitment)
		if err != nil {
			return err
		}
		slot = s
		return nil
	})
	return slot, err
}

// SignatureInfo is one entry in the signature stream, newest-first.
type SignatureInfo struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *int64
	Err       error // non-nil if the transaction itself failed on-chain
}

// ListSignaturesOptions controls pagination: Before paginates toward
// older signatures (exclusive), Until is an oldest-inclusive stop
// boundary.
type ListSignaturesOptions struct {
	Before *solana.Signature
	Until  *solana.Signature
	Limit  int
}

// ListSignatures returns program-scoped signatures, newest-first, per
// spec.md §6.1 ("before" cursor + "until" boundary semantics).
func (c *Client) ListSignatures(ctx context.Context, program solana.PublicKey, opts ListSignaturesOptions) ([]SignatureInfo, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	rpcOpts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}
	if opts.Before != nil {
		rpcOpts.Before = *opts.Before
	}
	if opts.Until != nil {
		rpcOpts.Until = *opts.Until
	}

	var out []SignatureInfo
	err := c.withRetry(ctx, func() error {
		res, err := c.pick().GetSignaturesForAddressWithOpts(ctx, program, rpcOpts)
		if err != nil {
			return err
		}
		out = make([]SignatureInfo, 0, len(res))
		for _, s := range res {
			info := SignatureInfo{Signature: s.Signature, Slot: s.Slot, BlockTime: unixPtr(s.BlockTime)}
			if s.Err != nil {
				info.Err = fmt.Errorf("%v", s.Err)
			}
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

func unixPtr(t *solana.UnixTimeSeconds) *int64 {
	if t == nil {
		return nil
	}
	v := int64(*t)
	return &v
}
