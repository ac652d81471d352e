// Command reset_checkpoint deletes the indexer's single cursor row so
// the poller falls back to a full backfill on next startup.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL must be set")
	}

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatalf("unable to parse DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	cmdTag, err := pool.Exec(ctx, `DELETE FROM indexer_cursor WHERE id = 'main'`)
	if err != nil {
		log.Fatalf("failed to delete cursor: %v", err)
	}

	if cmdTag.RowsAffected() == 0 {
		fmt.Println("no cursor row found; the indexer will start from a full backfill on next run")
	} else {
		fmt.Println("cursor reset; the indexer will start from a full backfill on next run")
	}
}
