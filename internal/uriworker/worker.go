package uriworker

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"agentindex/internal/repository"
)

// Task is one (asset, uri) unit of work.
type Task struct {
	Asset string
	URI   string
}

// Config controls worker concurrency, rate limiting, and the SSRF
// fetch parameters. Zero values fall back to spec.md §6.7's defaults.
type Config struct {
	Concurrency         int
	MinDispatchInterval time.Duration
	TaskTimeout         time.Duration
	QueueCapacity       int
	MaxBodyBytes        int64
	AllowInsecureURI    bool
	IPFSGateway         string
	ArGateway           string
	ServiceName         string
}

func (c *Config) applyDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 10
	}
	if c.MinDispatchInterval == 0 {
		c.MinDispatchInterval = 100 * time.Millisecond
	}
	if c.TaskTimeout == 0 {
		c.TaskTimeout = 30 * time.Second
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 5000
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.IPFSGateway == "" {
		c.IPFSGateway = "https://ipfs.io/ipfs"
	}
	if c.ArGateway == "" {
		c.ArGateway = "https://arweave.net"
	}
	if c.ServiceName == "" {
		c.ServiceName = "URIWorker"
	}
}

// Worker is the single-owner background queue of metadata fetch tasks
// (spec.md §4.6), grounded structurally on the teacher's
// nft_item_metadata_worker.go queue-and-process shape.
type Worker struct {
	repo *repository.Repository
	cfg  Config

	queue chan Task
	sem   chan struct{} // bounds concurrent in-flight fetches

	mu     sync.Mutex
	latest map[string]string // asset -> most recently enqueued URI, for dedup

	lastDispatch time.Time
	dispatchMu   sync.Mutex
}

// New constructs a Worker. Callers must call Start to begin draining
// the queue.
func New(repo *repository.Repository, cfg Config) *Worker {
	cfg.applyDefaults()
	return &Worker{
		repo:   repo,
		cfg:    cfg,
		queue:  make(chan Task, cfg.QueueCapacity),
		sem:    make(chan struct{}, cfg.Concurrency),
		latest: make(map[string]string),
	}
}

// Enqueue submits a task, deduplicating on asset (only the latest URI
// per asset survives) and rejecting outright on queue overflow (spec.md
// §4.6: "reject and warn on overflow").
func (w *Worker) Enqueue(task Task) {
	w.mu.Lock()
	if w.latest[task.Asset] == task.URI {
		w.mu.Unlock()
		return
	}
	w.latest[task.Asset] = task.URI
	w.mu.Unlock()

	select {
	case w.queue <- task:
	default:
		log.Printf("[%s] queue full (capacity %d), dropping task for asset %s", w.cfg.ServiceName, w.cfg.QueueCapacity, task.Asset)
	}
}

// Start drains the queue until ctx is cancelled, dispatching up to
// cfg.Concurrency fetches in parallel with at least MinDispatchInterval
// between dispatches. It blocks; callers should run it in its own
// goroutine.
func (w *Worker) Start(ctx context.Context) {
	log.Printf("[%s] starting (concurrency=%d queue_capacity=%d)", w.cfg.ServiceName, w.cfg.Concurrency, w.cfg.QueueCapacity)
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		log.Printf("[%s] stopped", w.cfg.ServiceName)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.queue:
			w.throttleDispatch()

			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			wg.Add(1)
			go func(t Task) {
				defer wg.Done()
				defer func() { <-w.sem }()
				w.processTask(ctx, t)
			}(task)
		}
	}
}

// throttleDispatch sleeps just enough to keep dispatches at least
// MinDispatchInterval apart (spec.md §4.6 rate-limit smoothing).
func (w *Worker) throttleDispatch() {
	w.dispatchMu.Lock()
	defer w.dispatchMu.Unlock()
	if since := time.Since(w.lastDispatch); since < w.cfg.MinDispatchInterval {
		time.Sleep(w.cfg.MinDispatchInterval - since)
	}
	w.lastDispatch = time.Now()
}

// processTask fetches, sanitizes, and writes one task, always clearing
// its dedup entry on completion so a subsequent change to the same
// asset's URI is not mistaken for a repeat.
func (w *Worker) processTask(ctx context.Context, task Task) {
	defer w.clearDedup(task)

	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancel()

	result, err := SecureFetch(taskCtx, task.URI, w.cfg.MaxBodyBytes, w.cfg.AllowInsecureURI, w.cfg.IPFSGateway, w.cfg.ArGateway, w.cfg.TaskTimeout)
	if err != nil {
		w.writeFailure(ctx, task, classifyFetchError(taskCtx, err))
		return
	}

	doc, err := parseAgentDocument(result.Body)
	if err != nil {
		w.writeFailure(ctx, task, "invalid_json")
		return
	}

	fields := documentFields(doc)
	fields = append(fields, writeStatus("ok"))
	if err := w.persist(ctx, task, fields); err != nil {
		log.Printf("[%s] asset %s: write failed: %v", w.cfg.ServiceName, task.Asset, err)
	}
}

func (w *Worker) clearDedup(task Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.latest[task.Asset] == task.URI {
		delete(w.latest, task.Asset)
	}
}

func (w *Worker) writeFailure(ctx context.Context, task Task, reason string) {
	if err := w.persist(ctx, task, []repository.URIMetadataField{writeStatus(reason)}); err != nil {
		log.Printf("[%s] asset %s: write failure status: %v", w.cfg.ServiceName, task.Asset, err)
	}
}

// classifyFetchError maps a SecureFetch error onto one of the status
// strings spec.md §4.6 names: timeout/error/oversize/invalid_json/blocked.
func classifyFetchError(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "blacklisted"), strings.Contains(msg, "private/reserved"),
		strings.Contains(msg, "unsupported scheme"), strings.Contains(msg, "scheme blocked"):
		return "blocked"
	case strings.Contains(msg, "exceeds cap"):
		return "oversize"
	default:
		return "error"
	}
}
