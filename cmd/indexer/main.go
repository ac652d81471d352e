// Command indexer wires together the ledger client, decoder, event
// buffer, poller, verifier, URI-metadata worker, and the read-only API
// into one running process, shut down in the order spec.md §5 requires:
// URI worker, then verifier, then poller (flushing its buffer), then
// API, then the database.
//
// Grounded on the teacher's root main.go: flag/env-driven construction,
// "Initializing <X>..." startup logging, and a signal.Notify-driven
// shutdown sequence.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"

	"agentindex/internal/api"
	"agentindex/internal/buffer"
	"agentindex/internal/config"
	"agentindex/internal/decoder"
	"agentindex/internal/eventbus"
	"agentindex/internal/ingester"
	"agentindex/internal/ledger"
	"agentindex/internal/repository"
	"agentindex/internal/uriworker"
	"agentindex/internal/verifier"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	log.Println("Initializing agent-reputation-registry indexer...")
	log.Printf("indexer_mode=%s metadata_index_mode=%s api_mode=%s", cfg.IndexerMode, cfg.MetadataIndexMode, cfg.APIMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(ctx, repository.Config{DSN: cfg.DatabaseURL})
	if err != nil {
		log.Fatalf("repository: %v", err)
	}
	defer repo.Close()

	program, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		log.Fatalf("invalid program_id: %v", err)
	}

	client, err := ledger.New(ledger.Config{Endpoints: splitEndpoints(cfg.RPCURL)})
	if err != nil {
		log.Fatalf("ledger: %v", err)
	}
	defer client.Close()

	dec := decoder.NewLogDecoder()

	bus := eventbus.New()
	defer bus.Close()

	buf := buffer.New(repo, "backfill")
	buf.SetEventBus(bus)

	var uriWorker *uriworker.Worker
	if cfg.MetadataIndexMode != config.MetadataIndexOff {
		uriWorker = uriworker.New(repo, uriworker.Config{
			TaskTimeout:      time.Duration(cfg.MetadataTimeoutMS) * time.Millisecond,
			MaxBodyBytes:     cfg.MetadataMaxBytes,
			AllowInsecureURI: cfg.AllowInsecureURI,
		})
		buf.SetURIEnqueuer(func(asset, uri string) {
			uriWorker.Enqueue(uriworker.Task{Asset: asset, URI: uri})
		})
	}

	poller := ingester.New(client, dec, repo, buf, ingester.Config{
		Program:         program,
		PollingInterval: time.Duration(cfg.PollingIntervalMS) * time.Millisecond,
		BatchSize:       cfg.BatchSize,
	})

	var v *verifier.Verifier
	if cfg.VerificationEnabled {
		v = verifier.New(client, repo, verifier.Config{
			Interval:          time.Duration(cfg.VerifyIntervalMS) * time.Millisecond,
			BatchSize:         cfg.VerifyBatchSize,
			SafetyMarginSlots: uint64(cfg.VerifySafetyMarginSlots),
			MaxRetries:        cfg.VerifyMaxRetries,
			ProgramID:         cfg.ProgramID,
		})
	}

	var srv *api.Server
	if cfg.APIMode != "off" {
		srv = api.NewServer(repo, cfg, bus)
		go func() {
			log.Printf("[API] listening on :%d", cfg.APIPort)
			if err := srv.Start(); err != nil {
				log.Printf("[API] server error: %v", err)
			}
		}()
	}

	uriCtx, uriCancel := context.WithCancel(context.Background())
	uriDone := make(chan struct{})
	if uriWorker != nil {
		go func() {
			defer close(uriDone)
			uriWorker.Start(uriCtx)
		}()
	} else {
		close(uriDone)
	}

	verifierCtx, verifierCancel := context.WithCancel(context.Background())
	verifierDone := make(chan struct{})
	if v != nil {
		go func() {
			defer close(verifierDone)
			v.Start(verifierCtx)
		}()
	} else {
		close(verifierDone)
	}

	go poller.Start(ctx)

	<-ctx.Done()
	log.Println("shutdown signal received, stopping in order: URI worker -> verifier -> poller -> API -> database")

	uriCancel()
	<-uriDone

	verifierCancel()
	<-verifierDone

	poller.Stop()
	poller.FlushBuffer(context.Background())

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[API] shutdown error: %v", err)
		}
		cancel()
	}

	log.Println("shutdown complete")
}

func splitEndpoints(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
