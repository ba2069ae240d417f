// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Isolation is the transaction isolation level recognized by the engine.
type Isolation string

const (
	Snapshot     Isolation = "SNAPSHOT"
	Serializable Isolation = "SERIALIZABLE"
)

// Config holds the options recognized by spec.md §6.2.
type Config struct {
	// ChunkSuggestSize is the target number of tuples per operator Next() chunk.
	ChunkSuggestSize int `mapstructure:"chunk_suggest_size"`
	// IsolationLevel is the isolation level new transactions run under.
	IsolationLevel Isolation `mapstructure:"isolation_level"`
}

// Default returns the documented defaults: CHUNK_SUGGEST_SIZE=128, SNAPSHOT.
func Default() Config {
	return Config{
		ChunkSuggestSize: 128,
		IsolationLevel:   Snapshot,
	}
}

// Load populates cfg starting from Default(), then overriding with any
// environment variable of the form "<prefix>CHUNK_SUGGEST_SIZE" /
// "<prefix>ISOLATION_LEVEL". No config file is required; an optional
// ".env" file is read if present.
func Load(prefix string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Optional file: a parse error is non-fatal, defaults still apply.
		}
	}

	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key, value := pair[0], pair[1]
		if !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		propKey := strings.TrimPrefix(key, prefixUpper)
		propKey = strings.ToLower(strings.TrimPrefix(propKey, "_"))
		v.Set(propKey, value)
	}

	v.SetDefault("chunk_suggest_size", cfg.ChunkSuggestSize)
	v.SetDefault("isolation_level", string(cfg.IsolationLevel))

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("babydb: unmarshal config: %w", err)
	}

	cfg.IsolationLevel = Isolation(strings.ToUpper(string(cfg.IsolationLevel)))
	if cfg.IsolationLevel != Snapshot && cfg.IsolationLevel != Serializable {
		return cfg, fmt.Errorf("babydb: invalid ISOLATION_LEVEL %q", cfg.IsolationLevel)
	}
	if cfg.ChunkSuggestSize <= 0 {
		return cfg, fmt.Errorf("babydb: CHUNK_SUGGEST_SIZE must be positive, got %d", cfg.ChunkSuggestSize)
	}
	return cfg, nil
}
