// Package config loads the indexer's closed configuration set (spec.md
// §6.7) from an optional YAML file plus environment-variable overrides,
// grounded on the teacher's env-var-with-default idiom
// (token_metadata_worker.go's getEnvIntDefault/getEnvOrDefault) layered
// on top of a yaml.v3 base file the way the teacher's own config.go
// loads its base settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// IndexerMode names how new transactions are discovered. The value is
// loaded and logged at startup; the poller always polls, whatever it is.
type IndexerMode string

const (
	IndexerModePolling   IndexerMode = "polling"
	IndexerModeWebsocket IndexerMode = "websocket"
	IndexerModeAuto      IndexerMode = "auto"
)

// MetadataIndexMode gates how much of the URI-metadata worker runs.
type MetadataIndexMode string

const (
	MetadataIndexOff      MetadataIndexMode = "off"
	MetadataIndexStandard MetadataIndexMode = "standard"
	MetadataIndexFull     MetadataIndexMode = "full"
)

// Config is the indexer's closed configuration set (spec.md §6.7). Every
// field can be set from the YAML file (if present) and has an
// environment-variable override; all but the two connection strings and
// the on-chain program id also have a default. There is no db_mode
// option: events are always written through the event buffer.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	RPCURL      string `yaml:"rpc_url"`
	ProgramID   string `yaml:"program_id"`

	APIMode     string      `yaml:"api_mode"`
	APIPort     int         `yaml:"api_port"`
	IndexerMode IndexerMode `yaml:"indexer_mode"`

	PollingIntervalMS      int  `yaml:"polling_interval_ms"`
	BatchSize              int  `yaml:"batch_size"`
	VerifyIntervalMS       int  `yaml:"verify_interval_ms"`
	VerifyBatchSize        int  `yaml:"verify_batch_size"`
	VerifySafetyMarginSlots int `yaml:"verify_safety_margin_slots"`
	VerifyMaxRetries       int  `yaml:"verify_max_retries"`
	VerificationEnabled    bool `yaml:"verification_enabled"`

	MetadataIndexMode     MetadataIndexMode `yaml:"metadata_index_mode"`
	MetadataTimeoutMS     int               `yaml:"metadata_timeout_ms"`
	MetadataMaxBytes      int64             `yaml:"metadata_max_bytes"`
	MetadataMaxValueBytes int               `yaml:"metadata_max_value_bytes"`
	AllowInsecureURI      bool              `yaml:"allow_insecure_uri"`

	StatsCacheTTLMS int `yaml:"stats_cache_ttl_ms"`
}

// Load reads path if it exists (a missing file is not an error — every
// option has an environment or built-in default), then applies
// environment-variable overrides for the full closed set.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: database_url is required (set in YAML or DATABASE_URL)")
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("config: rpc_url is required (set in YAML or RPC_URL)")
	}
	if cfg.ProgramID == "" {
		return nil, fmt.Errorf("config: program_id is required (set in YAML or PROGRAM_ID)")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.RPCURL = getEnvOrDefault("RPC_URL", c.RPCURL)
	c.ProgramID = getEnvOrDefault("PROGRAM_ID", c.ProgramID)

	c.APIMode = getEnvOrDefault("API_MODE", c.APIMode)
	c.APIPort = getEnvIntDefault("API_PORT", c.APIPort)
	c.IndexerMode = IndexerMode(getEnvOrDefault("INDEXER_MODE", string(c.IndexerMode)))

	c.PollingIntervalMS = getEnvIntDefault("POLLING_INTERVAL_MS", c.PollingIntervalMS)
	c.BatchSize = getEnvIntDefault("BATCH_SIZE", c.BatchSize)
	c.VerifyIntervalMS = getEnvIntDefault("VERIFY_INTERVAL_MS", c.VerifyIntervalMS)
	c.VerifyBatchSize = getEnvIntDefault("VERIFY_BATCH_SIZE", c.VerifyBatchSize)
	c.VerifySafetyMarginSlots = getEnvIntDefault("VERIFY_SAFETY_MARGIN_SLOTS", c.VerifySafetyMarginSlots)
	c.VerifyMaxRetries = getEnvIntDefault("VERIFY_MAX_RETRIES", c.VerifyMaxRetries)
	c.VerificationEnabled = getEnvBoolDefault("VERIFICATION_ENABLED", c.VerificationEnabled)

	c.MetadataIndexMode = MetadataIndexMode(getEnvOrDefault("METADATA_INDEX_MODE", string(c.MetadataIndexMode)))
	c.MetadataTimeoutMS = getEnvIntDefault("METADATA_TIMEOUT_MS", c.MetadataTimeoutMS)
	c.MetadataMaxBytes = int64(getEnvIntDefault("METADATA_MAX_BYTES", int(c.MetadataMaxBytes)))
	c.MetadataMaxValueBytes = getEnvIntDefault("METADATA_MAX_VALUE_BYTES", c.MetadataMaxValueBytes)
	c.AllowInsecureURI = getEnvBoolDefault("ALLOW_INSECURE_URI", c.AllowInsecureURI)

	c.StatsCacheTTLMS = getEnvIntDefault("STATS_CACHE_TTL_MS", c.StatsCacheTTLMS)
}

func (c *Config) applyDefaults() {
	if c.APIMode == "" {
		c.APIMode = "rest"
	}
	if c.APIPort == 0 {
		c.APIPort = 8080
	}
	if c.IndexerMode == "" {
		c.IndexerMode = IndexerModePolling
	}
	if c.PollingIntervalMS == 0 {
		c.PollingIntervalMS = 5000
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
	if c.VerifyIntervalMS == 0 {
		c.VerifyIntervalMS = 60000
	}
	if c.VerifyBatchSize == 0 {
		c.VerifyBatchSize = 200
	}
	if c.VerifySafetyMarginSlots == 0 {
		c.VerifySafetyMarginSlots = 32
	}
	if c.VerifyMaxRetries == 0 {
		c.VerifyMaxRetries = 3
	}
	if c.MetadataIndexMode == "" {
		c.MetadataIndexMode = MetadataIndexStandard
	}
	if c.MetadataTimeoutMS == 0 {
		c.MetadataTimeoutMS = 30000
	}
	if c.MetadataMaxBytes == 0 {
		c.MetadataMaxBytes = 1 << 20
	}
	if c.MetadataMaxValueBytes == 0 {
		c.MetadataMaxValueBytes = 65536
	}
	if c.StatsCacheTTLMS == 0 {
		c.StatsCacheTTLMS = 30000
	}
}

func getEnvOrDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
