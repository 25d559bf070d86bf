package node

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the full configuration for a raffled node. Values come
// from, in increasing priority: defaults, a YAML config file, and
// RAFFLED_* environment variables. Everything under [raffle] is fixed
// for the life of the process.
type Config struct {
	Raffle RaffleConfig `yaml:"raffle"`
	VRF    VRFConfig    `yaml:"vrf"`
	Keeper KeeperConfig `yaml:"keeper"`
	RPC    RPCConfig    `yaml:"rpc"`
	Log    LogConfig    `yaml:"log"`
}

// RaffleConfig holds the immutable raffle parameters.
type RaffleConfig struct {
	// EntranceFee is the entry fee in wei, decimal or 0x-hex.
	EntranceFee string `yaml:"entrance_fee" env:"RAFFLED_ENTRANCE_FEE"`
	// IntervalSeconds is the minimum time between draws.
	IntervalSeconds uint64 `yaml:"interval_seconds" env:"RAFFLED_INTERVAL_SECONDS"`
	// Account is the pot account address (0x-hex).
	Account string `yaml:"account" env:"RAFFLED_ACCOUNT"`
	// KeyHash selects the randomness lane (0x-hex, 32 bytes).
	KeyHash string `yaml:"key_hash" env:"RAFFLED_KEY_HASH"`
	// SubID is the randomness subscription identifier.
	SubID uint64 `yaml:"sub_id" env:"RAFFLED_SUB_ID"`
	// Confirmations is the randomness confirmation depth.
	Confirmations uint16 `yaml:"confirmations" env:"RAFFLED_CONFIRMATIONS"`
	// CallbackGasLimit is the resource limit for the fulfillment
	// callback, passed through to the coordinator.
	CallbackGasLimit uint32 `yaml:"callback_gas_limit" env:"RAFFLED_CALLBACK_GAS_LIMIT"`
}

// VRFConfig holds coordinator timing.
type VRFConfig struct {
	BlockTimeMillis    uint64 `yaml:"block_time_ms" env:"RAFFLED_VRF_BLOCK_TIME_MS"`
	PollIntervalMillis uint64 `yaml:"poll_interval_ms" env:"RAFFLED_VRF_POLL_INTERVAL_MS"`
}

// KeeperConfig holds automation timing.
type KeeperConfig struct {
	PollIntervalMillis uint64 `yaml:"poll_interval_ms" env:"RAFFLED_KEEPER_POLL_INTERVAL_MS"`
}

// RPCConfig holds the JSON-RPC server settings.
type RPCConfig struct {
	Enabled bool   `yaml:"enabled" env:"RAFFLED_RPC_ENABLED"`
	Host    string `yaml:"host" env:"RAFFLED_RPC_HOST"`
	Port    int    `yaml:"port" env:"RAFFLED_RPC_PORT"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" env:"RAFFLED_LOG_LEVEL"`
	Format string `yaml:"format" env:"RAFFLED_LOG_FORMAT"`
}

// DefaultConfig returns a Config with development defaults.
func DefaultConfig() *Config {
	return &Config{
		Raffle: RaffleConfig{
			EntranceFee:      "10000000000000000", // 0.01 ether
			IntervalSeconds:  30,
			Account:          "0x000000000000000000726166666c65642f706f74",
			KeyHash:          "0x0000000000000000000000000000000000000000000000000000000000000001",
			SubID:            1,
			Confirmations:    3,
			CallbackGasLimit: 500_000,
		},
		VRF: VRFConfig{
			BlockTimeMillis:    1000,
			PollIntervalMillis: 250,
		},
		Keeper: KeeperConfig{
			PollIntervalMillis: 1000,
		},
		RPC: RPCConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8647,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig builds the effective config: defaults, overlaid with the
// YAML file at path (skipped when path is empty), overlaid with
// environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Raffle.EntranceFee == "" {
		return errors.New("config: entrance_fee must not be empty")
	}
	if c.Raffle.IntervalSeconds == 0 {
		return errors.New("config: interval_seconds must be greater than 0")
	}
	if c.Raffle.Account == "" {
		return errors.New("config: account must not be empty")
	}
	if c.Raffle.CallbackGasLimit == 0 {
		return errors.New("config: callback_gas_limit must be greater than 0")
	}
	if c.RPC.Port < 0 || c.RPC.Port > 65535 {
		return fmt.Errorf("config: invalid rpc port: %d", c.RPC.Port)
	}
	if c.RPC.Enabled && c.RPC.Host == "" {
		return errors.New("config: rpc host must not be empty when rpc is enabled")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// RPCAddr returns the host:port the RPC server binds to.
func (c *Config) RPCAddr() string {
	return fmt.Sprintf("%s:%d", c.RPC.Host, c.RPC.Port)
}
