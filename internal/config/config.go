// Package config centralizes process configuration. No other package reads
// os.Getenv directly; everything flows through a Config value built once at
// startup and passed down via constructor injection, matching the flag +
// environment pattern used in the teacher's cmd/assistant/main.go.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every environment-tunable setting this service reads.
type Config struct {
	// HTTPAddr is the address the HTTP surface (C8) listens on.
	HTTPAddr string

	// TokenSecret signs and verifies resumable tokens (C2). Read from
	// SSE_SECRET, falling back to JWT_SECRET, falling back to a fixed
	// development value (never used outside local runs).
	TokenSecret string

	// TokenTTL bounds how long a resumable token remains valid, resolving
	// spec.md's Open Question about token expiration. Sourced from
	// RUN_STORE_TTL_SECONDS.
	TokenTTL time.Duration

	// RunStoreTTL is the TTL applied to run-metadata cache entries (C13).
	// Shares the same environment variable as TokenTTL by design: both
	// describe how long a run remains resumable/observable.
	RunStoreTTL time.Duration

	// SandboxAppPort is the default preview port used by the play flow's
	// FastAPI-style entry points.
	SandboxAppPort int

	// RedisAddr, when non-empty, switches the Run Store (C13) to a
	// Redis-backed implementation instead of the in-memory default.
	RedisAddr string

	// RunStoreMongoURI, when non-empty, switches the Run Store (C13) to a
	// MongoDB-backed implementation instead of Redis or the in-memory
	// default. Takes precedence over RedisAddr when both are set, since an
	// operator who configured Mongo explicitly wants queryable run history.
	RunStoreMongoURI      string
	RunStoreMongoDatabase string

	// ModelGatewayBaseURL, ModelGatewayAPIKey, and ModelGatewayDefault
	// configure the Model Gateway Client (C12).
	ModelGatewayBaseURL string
	ModelGatewayAPIKey  string
	ModelGatewayDefault string

	// AvailableModels is the static list served by GET /api/models (C14).
	AvailableModels []string
}

const devDefaultSecret = "dev-insecure-resume-token-secret"

// FromEnv builds a Config from process environment variables, applying the
// defaults named in spec.md §6 ("Environment").
func FromEnv() Config {
	cfg := Config{
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		TokenSecret:           firstNonEmpty(os.Getenv("SSE_SECRET"), os.Getenv("JWT_SECRET"), devDefaultSecret),
		TokenTTL:              time.Duration(getEnvInt("RUN_STORE_TTL_SECONDS", 900)) * time.Second,
		RunStoreTTL:           time.Duration(getEnvInt("RUN_STORE_TTL_SECONDS", 900)) * time.Second,
		SandboxAppPort:        getEnvInt("SANDBOX_APP_PORT", 8000),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RunStoreMongoURI:      os.Getenv("RUN_STORE_MONGO_URI"),
		RunStoreMongoDatabase: getEnv("RUN_STORE_MONGO_DATABASE", "ideagent"),
		ModelGatewayBaseURL:   getEnv("MODEL_GATEWAY_BASE_URL", "https://api.openai.com/v1"),
		ModelGatewayAPIKey:    os.Getenv("MODEL_GATEWAY_API_KEY"),
		ModelGatewayDefault:   getEnv("MODEL_GATEWAY_DEFAULT_MODEL", "gpt-4o"),
		AvailableModels:       []string{"gpt-4o", "gpt-4o-mini", "o3-mini"},
	}
	applyModelsFile(&cfg)
	return cfg
}

// modelsFile overlays AvailableModels/ModelGatewayDefault from a YAML file
// when MODELS_FILE names one, letting operators change the model picker's
// contents without a redeploy. Grounded on the config/yaml.v3 pattern the
// pack's jra3-linear-fuse repo uses for its own config.Load.
type modelsFile struct {
	Models  []string `yaml:"models"`
	Default string   `yaml:"default"`
}

// applyModelsFile overlays cfg.AvailableModels/ModelGatewayDefault from the
// YAML file named by MODELS_FILE, if set. A missing or unreadable file is
// not an error: the env/default values already in cfg stand.
func applyModelsFile(cfg *Config) {
	path := os.Getenv("MODELS_FILE")
	if path == "" {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var mf modelsFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return
	}
	if len(mf.Models) > 0 {
		cfg.AvailableModels = mf.Models
	}
	if mf.Default != "" {
		cfg.ModelGatewayDefault = mf.Default
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
