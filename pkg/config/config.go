package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds global settings for the Scam Defender engine.
// All settings can be configured via environment variables, a YAML file,
// or programmatically. Environment variables always win over the file.
type Config struct {
	// === Core Settings ===
	ModelDir   string `yaml:"model_dir"`   // Directory holding trained artifacts (default: "./models")
	ListenPort string `yaml:"listen_port"` // HTTP port for serve mode (default: "5000")

	// === Persistence ===
	DatabaseURL string `yaml:"database_url"` // Postgres DSN; empty = in-memory store (dev only)
	RedisURL    string `yaml:"redis_url"`    // Redis address for the verdict cache; empty = in-process cache

	// === ONNX Runtime ===
	OnnxLibraryPath string `yaml:"onnx_library_path"` // Path to libonnxruntime.so; empty = auto-detect

	// === Alerting Thresholds (risk score 0-100) ===
	// Severity bands: critical >= CriticalThreshold, high >= HighThreshold,
	// medium >= MediumThreshold, else low. Alerts fire at high and critical.
	CriticalThreshold float64 `yaml:"critical_threshold"` // default: 85
	HighThreshold     float64 `yaml:"high_threshold"`     // default: 65
	MediumThreshold   float64 `yaml:"medium_threshold"`   // default: 40

	// === Alert Stream ===
	StreamPollInterval time.Duration `yaml:"stream_poll_interval"` // default: 3s
	StreamBatchSize    int           `yaml:"stream_batch_size"`    // default: 20

	// === Verdict Cache ===
	VerdictCacheTTL time.Duration `yaml:"verdict_cache_ttl"` // default: 10m; 0 disables caching

	// === Sandbox ===
	SandboxMaxConcurrent int   `yaml:"sandbox_max_concurrent"` // default: 8
	SandboxMaxFileBytes  int64 `yaml:"sandbox_max_file_bytes"` // oversize flag threshold, default: 10 MiB

	// === Input Limits ===
	ExcerptMaxLen int `yaml:"excerpt_max_len"` // persisted input excerpt length, default: 240
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		ModelDir:   GetEnv("SCAMDEFENDER_MODEL_DIR", "./models"),
		ListenPort: GetEnv("SCAMDEFENDER_PORT", "5000"),

		DatabaseURL: GetEnv("SCAMDEFENDER_DATABASE_URL", os.Getenv("DATABASE_URL")),
		RedisURL:    GetEnv("SCAMDEFENDER_REDIS_URL", ""),

		OnnxLibraryPath: GetEnv("SCAMDEFENDER_ONNX_LIB", ""),

		CriticalThreshold: GetEnvFloat("SCAMDEFENDER_CRITICAL_THRESHOLD", 85),
		HighThreshold:     GetEnvFloat("SCAMDEFENDER_HIGH_THRESHOLD", 65),
		MediumThreshold:   GetEnvFloat("SCAMDEFENDER_MEDIUM_THRESHOLD", 40),

		StreamPollInterval: GetEnvDuration("SCAMDEFENDER_STREAM_POLL", 3*time.Second),
		StreamBatchSize:    clampInt(GetEnvInt("SCAMDEFENDER_STREAM_BATCH", 20), 1, 500),

		VerdictCacheTTL: GetEnvDuration("SCAMDEFENDER_VERDICT_CACHE_TTL", 10*time.Minute),

		SandboxMaxConcurrent: clampInt(GetEnvInt("SCAMDEFENDER_SANDBOX_CONCURRENCY", 8), 1, 256),
		SandboxMaxFileBytes:  int64(GetEnvInt("SCAMDEFENDER_SANDBOX_MAX_FILE_BYTES", 10*1024*1024)),

		ExcerptMaxLen: clampInt(GetEnvInt("SCAMDEFENDER_EXCERPT_LEN", 240), 16, 4096),
	}
}

// LoadFile reads a YAML config file and returns a Config with the file's
// values layered under environment overrides. A missing file is not an
// error; the env-only defaults are returned instead.
func LoadFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	fileCfg := &Config{}
	if err := yaml.Unmarshal(raw, fileCfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	applyFallback(cfg, fileCfg)
	log.Printf("[CONFIG] Loaded settings from %s", path)
	return cfg, nil
}

// applyFallback copies file values into cfg wherever the corresponding
// environment variable is unset. Env always wins over the file.
func applyFallback(cfg, fileCfg *Config) {
	if os.Getenv("SCAMDEFENDER_MODEL_DIR") == "" && fileCfg.ModelDir != "" {
		cfg.ModelDir = fileCfg.ModelDir
	}
	if os.Getenv("SCAMDEFENDER_PORT") == "" && fileCfg.ListenPort != "" {
		cfg.ListenPort = fileCfg.ListenPort
	}
	if os.Getenv("SCAMDEFENDER_DATABASE_URL") == "" && os.Getenv("DATABASE_URL") == "" && fileCfg.DatabaseURL != "" {
		cfg.DatabaseURL = fileCfg.DatabaseURL
	}
	if os.Getenv("SCAMDEFENDER_REDIS_URL") == "" && fileCfg.RedisURL != "" {
		cfg.RedisURL = fileCfg.RedisURL
	}
	if os.Getenv("SCAMDEFENDER_ONNX_LIB") == "" && fileCfg.OnnxLibraryPath != "" {
		cfg.OnnxLibraryPath = fileCfg.OnnxLibraryPath
	}
	if os.Getenv("SCAMDEFENDER_CRITICAL_THRESHOLD") == "" && fileCfg.CriticalThreshold != 0 {
		cfg.CriticalThreshold = fileCfg.CriticalThreshold
	}
	if os.Getenv("SCAMDEFENDER_HIGH_THRESHOLD") == "" && fileCfg.HighThreshold != 0 {
		cfg.HighThreshold = fileCfg.HighThreshold
	}
	if os.Getenv("SCAMDEFENDER_MEDIUM_THRESHOLD") == "" && fileCfg.MediumThreshold != 0 {
		cfg.MediumThreshold = fileCfg.MediumThreshold
	}
	if os.Getenv("SCAMDEFENDER_STREAM_POLL") == "" && fileCfg.StreamPollInterval != 0 {
		cfg.StreamPollInterval = fileCfg.StreamPollInterval
	}
	if os.Getenv("SCAMDEFENDER_SANDBOX_CONCURRENCY") == "" && fileCfg.SandboxMaxConcurrent != 0 {
		cfg.SandboxMaxConcurrent = fileCfg.SandboxMaxConcurrent
	}
	if os.Getenv("SCAMDEFENDER_VERDICT_CACHE_TTL") == "" && fileCfg.VerdictCacheTTL != 0 {
		cfg.VerdictCacheTTL = fileCfg.VerdictCacheTTL
	}
}

// Validate checks that the thresholds form a sane severity ladder.
func (c *Config) Validate() error {
	if !(c.MediumThreshold < c.HighThreshold && c.HighThreshold < c.CriticalThreshold) {
		return fmt.Errorf("severity thresholds must be strictly increasing: medium=%.1f high=%.1f critical=%.1f",
			c.MediumThreshold, c.HighThreshold, c.CriticalThreshold)
	}
	if c.StreamPollInterval <= 0 {
		return fmt.Errorf("stream poll interval must be positive")
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing
// These are exported for use by other packages (e.g., pkg/artifact).

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvDuration returns the duration value of an environment variable or a
// default value. Accepts Go duration syntax ("3s", "500ms") or bare seconds.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
