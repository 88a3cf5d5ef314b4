// Package config loads the engine's mount-time configuration through
// Viper, the config library the rest of this pack's CLIs (and the
// teacher's own cmd package) reach for rather than hand-rolled flag
// parsing (spec.md §6's "CLI/env/config: out of scope (external adapter)"
// still leaves the engine's own Config type and loader in scope, since
// cryptofs.Mount needs a concrete value to start from).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/cryptofs/cryptfs/internal/crypto"
)

// Config is the resolved set of knobs a mount needs. It never includes
// mount-path/kernel-bridge options — those belong to an external adapter.
type Config struct {
	DataDir     string        `mapstructure:"data_dir"`
	Cipher      string        `mapstructure:"cipher"`
	BlockSize   int           `mapstructure:"block_size"`
	KeyCacheTTL time.Duration `mapstructure:"key_cache_ttl"`

	ArgonTime      uint32 `mapstructure:"argon_time"`
	ArgonMemoryKiB uint32 `mapstructure:"argon_memory_kib"`
	ArgonThreads   uint8  `mapstructure:"argon_threads"`
}

// Defaults mirror crypto.DefaultKDFParams and blockstream.DefaultBlockSize
// without importing blockstream here, to avoid a config→blockstream
// dependency the other components don't need.
const (
	DefaultBlockSize   = 1 << 20
	DefaultKeyCacheTTL = 10 * time.Minute
)

func defaults() Config {
	return Config{
		Cipher:         string(crypto.SuiteChaCha20Poly1305),
		BlockSize:      DefaultBlockSize,
		KeyCacheTTL:    DefaultKeyCacheTTL,
		ArgonTime:      crypto.DefaultKDFParams.TimeCost,
		ArgonMemoryKiB: crypto.DefaultKDFParams.MemoryKiB,
		ArgonThreads:   crypto.DefaultKDFParams.Parallelism,
	}
}

// Load resolves configuration from, in precedence order: an explicit path,
// $CRYPTOFS_CONFIG, or built-in defaults. dataDir overrides whatever the
// config file says, since it is almost always supplied on the command
// line.
func Load(explicitPath, dataDir string) (Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("CRYPTOFS")
	v.AutomaticEnv()

	path := explicitPath
	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.DataDir == "" {
		return Config{}, fmt.Errorf("data directory is required")
	}

	switch crypto.SuiteName(cfg.Cipher) {
	case crypto.SuiteChaCha20Poly1305, crypto.SuiteAES256GCM:
	default:
		return Config{}, fmt.Errorf("unknown cipher suite %q", cfg.Cipher)
	}

	return cfg, nil
}

// SuiteName returns the configured cipher as a crypto.SuiteName.
func (c Config) SuiteName() crypto.SuiteName { return crypto.SuiteName(c.Cipher) }

// KDFParams returns the configured Argon2id parameters.
func (c Config) KDFParams() crypto.KDFParams {
	return crypto.KDFParams{
		TimeCost:    c.ArgonTime,
		MemoryKiB:   c.ArgonMemoryKiB,
		Parallelism: c.ArgonThreads,
	}
}
