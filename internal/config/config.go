package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all configuration for the PatternForge engine.
type Config struct {
	Port      int
	Version   string
	Patterns  PatternsConfig
	Sessions  SessionsConfig
	Provider  ProviderConfig
	Telemetry TelemetryConfig
}

type PatternsConfig struct {
	BuiltinDir string
	PrivateDir string
	TagsFile   string
}

type SessionsConfig struct {
	DataDir string
	Budget  int // history budget per session, in runes
}

type ProviderConfig struct {
	Endpoint       string
	APIKey         string
	TimeoutSeconds int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("PATTERNFORGE_PORT", 8080),
		Version: envStr("PATTERNFORGE_VERSION", "0.2.0"),
		Patterns: PatternsConfig{
			BuiltinDir: envStr("PATTERNFORGE_PATTERN_DIR", "patterns"),
			PrivateDir: envStr("PATTERNFORGE_PRIVATE_PATTERN_DIR", defaultPrivateDir()),
			TagsFile:   envStr("PATTERNFORGE_TAGS_FILE", filepath.Join("patterns", "tags.yaml")),
		},
		Sessions: SessionsConfig{
			DataDir: envStr("PATTERNFORGE_DATA_DIR", defaultDataDir()),
			Budget:  envInt("PATTERNFORGE_SESSION_BUDGET", 200_000),
		},
		Provider: ProviderConfig{
			Endpoint:       envStr("PATTERNFORGE_PROVIDER_ENDPOINT", ""),
			APIKey:         envStr("OPENROUTER_API_KEY", ""),
			TimeoutSeconds: envInt("PATTERNFORGE_PROVIDER_TIMEOUT", 120),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "patternforge"),
		},
	}
}

// defaultPrivateDir is ~/.patternforge/patterns; empty when no home
// directory is resolvable, which disables the private tier.
func defaultPrivateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".patternforge", "patterns")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".patternforge")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
