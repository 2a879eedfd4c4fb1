package model

import (
	"runtime"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Config holds all tokenatlas settings
type Config struct {
	Source       SourceConfig       `yaml:"source" mapstructure:"source"`
	Corpus       CorpusConfig       `yaml:"corpus" mapstructure:"corpus"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Resolver     ResolverConfig     `yaml:"resolver" mapstructure:"resolver"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// SourceConfig locates the token source
type SourceConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`       // Directory (one file per category) or single file
	Persist bool   `yaml:"persist" mapstructure:"persist"` // Write mutations back to the source
}

// CorpusConfig controls usage scanning
type CorpusConfig struct {
	Root           string   `yaml:"root" mapstructure:"root"`
	Include        []string `yaml:"include" mapstructure:"include"`
	Exclude        []string `yaml:"exclude" mapstructure:"exclude"`
	PropertyPrefix string   `yaml:"property_prefix" mapstructure:"property_prefix"` // Prepended to custom property names (e.g. "ds-")
	MatchValues    bool     `yaml:"match_values" mapstructure:"match_values"`       // Also match primitive literal values
	MatchPaths     bool     `yaml:"match_paths" mapstructure:"match_paths"`         // Also match dotted token paths
}

// CacheConfig controls usage scan caching
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	Dir       string        `yaml:"dir" mapstructure:"dir"` // Empty disables the disk layer
}

// ConcurrencyConfig controls scan parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ResolverConfig controls reference resolution
type ResolverConfig struct {
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	MaxConns int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// RateLimitingConfig throttles mutating API calls per client
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Pretty bool   `yaml:"pretty" mapstructure:"pretty"`
}

// DefaultMaxDepth bounds reference chains independently of cycle detection
const DefaultMaxDepth = 32

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Path: "tokens",
		},
		Corpus: CorpusConfig{
			Root: ".",
			Include: []string{
				"**/*.{css,scss,sass,less}",
				"**/*.{js,jsx,ts,tsx,vue,svelte,html}",
			},
			Exclude: []string{
				"**/node_modules/**",
				"**/dist/**",
				"**/.git/**",
			},
			MatchPaths: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			TTL:       10 * time.Minute,
			MemoryTTL: 5 * time.Minute,
		},
		Concurrency: ConcurrencyConfig{
			Workers: runtime.NumCPU(),
		},
		Resolver: ResolverConfig{
			MaxDepth: DefaultMaxDepth,
		},
		Server: ServerConfig{
			Addr:     "127.0.0.1:7411",
			MaxConns: 64,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Config validation errors.
var (
	ErrSourceEmpty     = errors.Base("source path must not be empty")
	ErrCorpusEmpty     = errors.Base("corpus root must not be empty")
	ErrMaxDepthInvalid = errors.Base("resolver max depth must be positive")
	ErrWorkersInvalid  = errors.Base("worker count must be positive")
)

// Validate checks that the Config is well-formed
func (c *Config) Validate() error {
	if c.Source.Path == "" {
		return errors.WithStack(ErrSourceEmpty)
	}
	if c.Corpus.Root == "" {
		return errors.WithStack(ErrCorpusEmpty)
	}
	if c.Resolver.MaxDepth <= 0 {
		return errors.WithStack(ErrMaxDepthInvalid)
	}
	if c.Concurrency.Workers <= 0 {
		return errors.WithStack(ErrWorkersInvalid)
	}
	return nil
}
