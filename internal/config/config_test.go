package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockrank/blockrank/internal/common"
)

func validConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			RPCURL:          "http://localhost:8545",
			RegistryAddress: "0x9999999999999999999999999999999999999999",
		},
		Store: DatabaseConfig{
			Path: "blockrank.db",
		},
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Client = &ClientConfig{QueryURL: "http://localhost:8080"}
	cfg.ApplyDefaults()

	assert.Equal(t, uint64(5000), cfg.Chain.ChunkSize)
	assert.Equal(t, 12*time.Second, cfg.Chain.PollInterval.Duration)

	assert.Equal(t, "WAL", cfg.Store.JournalMode)
	assert.Equal(t, "NORMAL", cfg.Store.Synchronous)
	assert.Equal(t, 5000, cfg.Store.BusyTimeout)

	assert.Equal(t, 60*time.Second, cfg.Client.CooldownBase.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Client.CooldownMax.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Client.CacheTTL.Duration)
	assert.Equal(t, "positions.json", cfg.Client.PositionCachePath)
	assert.Equal(t, []int{1}, cfg.Client.WatchLevels)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing rpc url",
			mutate:  func(c *Config) { c.Chain.RPCURL = "" },
			wantErr: "chain.rpc_url",
		},
		{
			name:    "missing registry address",
			mutate:  func(c *Config) { c.Chain.RegistryAddress = "" },
			wantErr: "chain.registry_address",
		},
		{
			name:    "malformed registry address",
			mutate:  func(c *Config) { c.Chain.RegistryAddress = "not-an-address" },
			wantErr: "not a valid address",
		},
		{
			name:    "missing store path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: "store",
		},
		{
			name: "invalid journal mode",
			mutate: func(c *Config) {
				c.Store.JournalMode = "SPINNING"
			},
			wantErr: "journal_mode",
		},
		{
			name: "cooldown base above cap",
			mutate: func(c *Config) {
				c.Client = &ClientConfig{
					CooldownBase: common.NewDuration(10 * time.Minute),
					CooldownMax:  common.NewDuration(5 * time.Minute),
				}
			},
			wantErr: "cooldown_base",
		},
		{
			name: "unknown log component",
			mutate: func(c *Config) {
				c.Logging = &LoggingConfig{ComponentLevels: map[string]string{"nonsense": "debug"}}
			},
			wantErr: "unknown component",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	t.Parallel()

	content := `
chain:
  rpc_url: http://localhost:8545
  registry_address: "0x9999999999999999999999999999999999999999"
  start_block: 1000
  poll_interval: 30s
store:
  path: blockrank.db
client:
  query_url: http://localhost:8080
  cooldown_base: 1m
  cooldown_max: 5m
  watch_levels: [1, 2]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), cfg.Chain.StartBlock)
	assert.Equal(t, 30*time.Second, cfg.Chain.PollInterval.Duration)
	// Defaults fill what the file omits
	assert.Equal(t, uint64(5000), cfg.Chain.ChunkSize)

	require.NotNil(t, cfg.Client)
	assert.Equal(t, time.Minute, cfg.Client.CooldownBase.Duration)
	assert.Equal(t, []int{1, 2}, cfg.Client.WatchLevels)
}

func TestLoadFromFile_TOML(t *testing.T) {
	t.Parallel()

	content := `
[chain]
rpc_url = "http://localhost:8545"
registry_address = "0x9999999999999999999999999999999999999999"
chunk_size = 2500

[store]
path = "blockrank.db"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), cfg.Chain.ChunkSize)
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile("config.ini")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format")
}

func TestLoadFromFile_InvalidConfigRejected(t *testing.T) {
	t.Parallel()

	content := `
chain:
  rpc_url: http://localhost:8545
  registry_address: "nope"
store:
  path: blockrank.db
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
