package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DATABASE_URL", "RPC_URL", "PROGRAM_ID", "API_MODE", "API_PORT",
		"INDEXER_MODE", "POLLING_INTERVAL_MS", "BATCH_SIZE", "VERIFY_INTERVAL_MS",
		"VERIFY_BATCH_SIZE", "VERIFY_SAFETY_MARGIN_SLOTS", "VERIFY_MAX_RETRIES",
		"VERIFICATION_ENABLED", "METADATA_INDEX_MODE", "METADATA_TIMEOUT_MS",
		"METADATA_MAX_BYTES", "METADATA_MAX_VALUE_BYTES", "ALLOW_INSECURE_URI",
		"STATS_CACHE_TTL_MS",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/x")
	os.Setenv("RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("PROGRAM_ID", "11111111111111111111111111111111")
	defer clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want default 1000", cfg.BatchSize)
	}
}

func TestLoadRequiresConnectionFields(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	if _, err := Load(""); err == nil {
		t.Fatal("expected an error when database_url/rpc_url/program_id are unset")
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/x")
	os.Setenv("RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("PROGRAM_ID", "11111111111111111111111111111111")
	os.Setenv("METADATA_INDEX_MODE", "off")
	os.Setenv("BATCH_SIZE", "250")
	defer clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetadataIndexMode != MetadataIndexOff {
		t.Errorf("MetadataIndexMode = %q, want %q", cfg.MetadataIndexMode, MetadataIndexOff)
	}
	if cfg.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want 250", cfg.BatchSize)
	}
}

func TestLoadYAMLFileProvidesConnectionFields(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "database_url: postgres://localhost/x\nrpc_url: https://api.mainnet-beta.solana.com\nprogram_id: 11111111111111111111111111111111\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/x" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}
