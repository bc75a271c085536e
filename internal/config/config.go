package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/versekeeper/versekeeper/pkg/models"
)

// Config holds all configuration for the VerseKeeper server and CLI.
type Config struct {
	Port      int
	Version   string
	LogLevel  string
	APIKeys   []string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	AI        AIConfig
}

type DatabaseConfig struct {
	// URL selects PostgreSQL. Empty means the in-memory store.
	URL            string
	MaxConnections int
	// DataDir is where the in-memory store keeps its snapshot. Empty disables persistence.
	DataDir string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// AIConfig describes every backend and how calls are orchestrated.
type AIConfig struct {
	SelectedProvider string
	AttemptTimeout   time.Duration
	ScriptureCache   int
	Providers        []ProviderEnv
}

// ProviderEnv is one backend's settings as read from the environment.
type ProviderEnv struct {
	ID          string
	Priority    int
	Model       string
	APIKey      string
	Endpoint    string
	Temperature float64
	Enabled     bool
}

// LoadDotEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Err(err).Str("file", f).Msg("Failed to load env file")
			}
			continue
		}
		log.Debug().Str("file", f).Msg("Loaded env file")
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:     envInt("VERSEKEEPER_PORT", 8080),
		Version:  envStr("VERSEKEEPER_VERSION", "0.1.0"),
		LogLevel: envStr("VERSEKEEPER_LOG_LEVEL", "info"),
		APIKeys:  envList("VERSEKEEPER_API_KEYS"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 10),
			DataDir:        envStr("VERSEKEEPER_DATA_DIR", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "versekeeper"),
		},
		AI: AIConfig{
			SelectedProvider: envStr("VERSEKEEPER_AI_PROVIDER", ""),
			AttemptTimeout:   envDuration("VERSEKEEPER_ATTEMPT_TIMEOUT", 10*time.Second),
			ScriptureCache:   envInt("VERSEKEEPER_SCRIPTURE_CACHE", 256),
			Providers: []ProviderEnv{
				providerEnv("esv", "ESV", 1, false),
				providerEnv("bible-api", "BIBLE_API", 2, true),
				providerEnv("biblegateway", "BIBLEGATEWAY", 3, false),
				providerEnv("openai", "OPENAI", 1, false),
				providerEnv("anthropic", "ANTHROPIC", 2, false),
				providerEnv("gemini", "GEMINI", 3, false),
				providerEnv("ollama", "OLLAMA", 4, false),
				// Canned answers for offline development. Only on with MOCK_ENABLED=true.
				providerEnv("mock", "MOCK", 99, false),
			},
		},
	}
}

// providerEnv reads <PREFIX>_API_KEY, _MODEL, _ENDPOINT, _TEMPERATURE,
// _PRIORITY and _ENABLED. A provider is enabled by default when its key is
// set, or when keyless is true.
func providerEnv(id, prefix string, priority int, keyless bool) ProviderEnv {
	key := envStr(prefix+"_API_KEY", "")
	return ProviderEnv{
		ID:          id,
		Priority:    envInt(prefix+"_PRIORITY", priority),
		Model:       envStr(prefix+"_MODEL", ""),
		APIKey:      key,
		Endpoint:    envStr(prefix+"_ENDPOINT", ""),
		Temperature: envFloat(prefix+"_TEMPERATURE", models.DefaultTemperature),
		Enabled:     envBool(prefix+"_ENABLED", keyless || key != ""),
	}
}

// Provider returns the settings for id.
func (c AIConfig) Provider(id string) (ProviderEnv, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderEnv{}, false
}

// Settings builds the configuration batch handed to the orchestrator. Only
// enabled providers get an entry.
func (c AIConfig) Settings() models.AggregateSettings {
	settings := models.AggregateSettings{
		SelectedProvider: c.SelectedProvider,
		Configs:          make(map[string]models.ProviderConfig, len(c.Providers)),
	}
	for _, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		settings.Configs[p.ID] = models.ProviderConfig{
			ID:          p.ID,
			Model:       p.Model,
			APIKey:      p.APIKey,
			Endpoint:    p.Endpoint,
			Temperature: p.Temperature,
			Enabled:     true,
		}
	}
	return settings
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blank items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
	}
	return fallback
}
