package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration, assembled from environment
// variables. All keys are prefixed VOICECOACH_.
type Config struct {
	HTTP     HTTPConfig
	Mongo    MongoConfig
	LLM      LLMConfig
	TTS      TTSConfig
	Realtime RealtimeConfig
	Timeouts TimeoutConfig
	Registry RegistryConfig
	Features FeatureFlags
}

// HTTPConfig holds HTTP/WebSocket server configuration.
type HTTPConfig struct {
	Host string
	Port int
}

// MongoConfig holds Storage Gateway connection settings.
type MongoConfig struct {
	URI      string
	Database string
}

// LLMConfig holds LLM Adapter settings.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// TTSConfig holds TTS Adapter settings.
type TTSConfig struct {
	Provider     string // "google" | "elevenlabs" | "" (disabled)
	GoogleKey    string
	ElevenLabKey string
	Voice        string
}

// RealtimeConfig holds Realtime Credential Issuer settings.
type RealtimeConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// TimeoutConfig holds the suspension-point timeouts for blocking operations.
type TimeoutConfig struct {
	LLM      time.Duration
	TTS      time.Duration
	Realtime time.Duration
	Storage  time.Duration
}

// RegistryConfig holds Session Registry policy knobs.
type RegistryConfig struct {
	IdleSweepInterval time.Duration
	IdleThreshold     time.Duration
	GreetingMinGap    time.Duration
}

// FeatureFlags holds feature toggles.
type FeatureFlags struct {
	RealtimeEnabled    bool
	PerformanceMode    bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Host: getEnvString("VOICECOACH_HTTP_HOST", "0.0.0.0"),
			Port: getEnvInt("VOICECOACH_HTTP_PORT", 8080),
		},
		Mongo: MongoConfig{
			URI:      getEnvString("VOICECOACH_MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnvString("VOICECOACH_MONGO_DB", "voicecoach"),
		},
		LLM: LLMConfig{
			APIKey:  getEnvString("VOICECOACH_LLM_API_KEY", ""),
			BaseURL: getEnvString("VOICECOACH_LLM_BASE_URL", ""),
			Model:   getEnvString("VOICECOACH_LLM_MODEL", "gpt-4o-mini"),
		},
		TTS: TTSConfig{
			Provider:     getEnvString("VOICECOACH_TTS_PROVIDER", ""),
			GoogleKey:    getEnvString("VOICECOACH_TTS_GOOGLE_KEY", ""),
			ElevenLabKey: getEnvString("VOICECOACH_TTS_ELEVENLABS_KEY", ""),
			Voice:        getEnvString("VOICECOACH_TTS_VOICE", "en-US-Neural2-C"),
		},
		Realtime: RealtimeConfig{
			Enabled: getEnvBool("VOICECOACH_REALTIME_ENABLED", false),
			APIKey:  getEnvString("VOICECOACH_REALTIME_API_KEY", ""),
			BaseURL: getEnvString("VOICECOACH_REALTIME_BASE_URL", "https://api.openai.com/v1/realtime/sessions"),
			Model:   getEnvString("VOICECOACH_REALTIME_MODEL", "gpt-4o-realtime-preview"),
			Voice:   getEnvString("VOICECOACH_REALTIME_VOICE", "alloy"),
		},
		Timeouts: TimeoutConfig{
			LLM:      getEnvDuration("VOICECOACH_TIMEOUT_LLM_SECONDS", 8*time.Second),
			TTS:      getEnvDuration("VOICECOACH_TIMEOUT_TTS_SECONDS", 15*time.Second),
			Realtime: getEnvDuration("VOICECOACH_TIMEOUT_REALTIME_SECONDS", 10*time.Second),
			Storage:  getEnvDuration("VOICECOACH_TIMEOUT_STORAGE_SECONDS", 5*time.Second),
		},
		Registry: RegistryConfig{
			IdleSweepInterval: getEnvDuration("VOICECOACH_REGISTRY_SWEEP_SECONDS", 60*time.Second),
			IdleThreshold:     time.Duration(getEnvInt("VOICECOACH_REGISTRY_IDLE_MINUTES", 5)) * time.Minute,
			GreetingMinGap:    getEnvDuration("VOICECOACH_REGISTRY_GREETING_GAP_SECONDS", 5*time.Second),
		},
		Features: FeatureFlags{
			RealtimeEnabled: getEnvBool("VOICECOACH_FEATURE_REALTIME", false),
			PerformanceMode: getEnvBool("VOICECOACH_FEATURE_PERFORMANCE_MODE", false),
		},
	}

	cfg.Realtime.Enabled = cfg.Realtime.Enabled && cfg.Features.RealtimeEnabled

	return cfg, nil
}

// GetAddress returns the HTTP/WebSocket server address.
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration reads an integer number of seconds and returns it as a
// time.Duration, falling back to defaultValue on absence or parse failure.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
