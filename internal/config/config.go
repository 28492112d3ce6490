package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	CORSOrigin string
	LogLevel   string
	LogFormat  string
	Timezone   string
	// Upstream document-collection API
	UpstreamURL              string
	UpstreamToken            string
	UpstreamTimeout          time.Duration
	UpstreamRPS              float64
	UpstreamWriteConcurrency int
	// Response cache
	CacheFreshTTL     time.Duration
	CacheStaleTTL     time.Duration
	CacheWarmSchedule string
	DomainsFile       string
	// Plans wait for a future series start instead of beginning today
	PlanFromSeriesStart bool
	// Search
	MeiliURL       string
	MeiliMasterKey string
	// Language model used for classification
	LLMProvider string
	LLMAPIKey   string
	LLMModel    string
	LLMBaseURL  string
}

func Load() Config {
	return Config{
		Addr:                     getenv("API_ADDR", ":8787"),
		CORSOrigin:               getenv("CORS_ORIGIN", "*"),
		LogLevel:                 getenv("LOG_LEVEL", "info"),
		LogFormat:                getenv("LOG_FORMAT", "json"),
		Timezone:                 getenv("TIMEZONE", "Local"),
		UpstreamURL:              getenv("UPSTREAM_URL", "http://localhost:8090/api"),
		UpstreamToken:            getenv("UPSTREAM_TOKEN", ""),
		UpstreamTimeout:          time.Duration(getenvInt("UPSTREAM_TIMEOUT_SECONDS", 15)) * time.Second,
		UpstreamRPS:              getenvFloat("UPSTREAM_RPS", 5),
		UpstreamWriteConcurrency: getenvInt("UPSTREAM_WRITE_CONCURRENCY", 4),
		CacheFreshTTL:            time.Duration(getenvInt("CACHE_FRESH_TTL_SECONDS", 300)) * time.Second,
		CacheStaleTTL:            time.Duration(getenvInt("CACHE_STALE_TTL_SECONDS", 600)) * time.Second,
		CacheWarmSchedule:        getenv("CACHE_WARM_SCHEDULE", "@every 4m"),
		DomainsFile:              getenv("DOMAINS_FILE", ""),
		PlanFromSeriesStart:      getenvBool("PLAN_FROM_SERIES_START", false),
		// Search is optional; an empty MEILI_URL keeps the in-memory index only
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		// Classification is disabled unless an API key is set
		LLMProvider: getenv("LLM_PROVIDER", "claude"),
		LLMAPIKey:   getenv("LLM_API_KEY", ""),
		LLMModel:    getenv("LLM_MODEL", ""),
		LLMBaseURL:  getenv("LLM_BASE_URL", ""),
	}
}

// Location resolves Timezone, falling back to the process local zone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
