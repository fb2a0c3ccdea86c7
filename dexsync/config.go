package dexsync

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/pogodex/dexsync/dexsync/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log      LogConfig         `toml:"log"`
	DB       database.DBConfig `toml:"db"`
	Sync     SyncConfig        `toml:"sync"`
	Receiver ReceiverConfig    `toml:"receiver"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type SyncConfig struct {
	// FlushIntervalSeconds is how often the delivery scheduler re-checks
	// the outbox while a cycle is active.
	FlushIntervalSeconds int `toml:"flush_interval_seconds"`
}

func (c SyncConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

type ReceiverConfig struct {
	// BaseURL of the batched-updates receiver, e.g. "http://localhost:8085".
	BaseURL string `toml:"base_url"`
	// FetchURL of the authoritative reader API.
	FetchURL       string `toml:"fetch_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c ReceiverConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{Log: %+v, DB: %+v, Sync: %+v, Receiver: %+v}",
		c.Log, c.DB, c.Sync, c.Receiver)
}
