package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all server settings in correct types
type Config struct {
	Port              string
	DownloadDir       string
	CookieFile        string
	RequestLogFile    string
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	SweepInterval     time.Duration
	RetainFor         time.Duration
	WipeHour          int // local hour of the daily full-directory wipe
	SessionTTL        time.Duration
	RateLimit         float64 // requests per second across the API
	RateBurst         int
}

// Load: the only way to get config in the app
func Load() *Config {
	cfg := &Config{
		Port:              getEnv("PORT", ":8080"),
		DownloadDir:       getEnv("DOWNLOAD_DIR", "static/downloads"),
		CookieFile:        getEnv("COOKIE_FILE", ""),
		RequestLogFile:    getEnv("REQUEST_LOG_FILE", "request_logs.json"),
		MaxConcurrentJobs: getEnvAsInt("MAX_CONCURRENT_JOBS", 3),
		JobTimeout:        minutes("JOB_TIMEOUT_MINUTES", 30),
		SweepInterval:     minutes("SWEEP_INTERVAL_MINUTES", 5),
		RetainFor:         time.Duration(getEnvAsInt("RETAIN_FOR_SECONDS", 900)) * time.Second,
		WipeHour:          getEnvAsInt("WIPE_HOUR", 4),
		SessionTTL:        minutes("SESSION_TTL_MINUTES", 30),
		RateLimit:         float64(getEnvAsInt("RATE_LIMIT_PER_SECOND", 20)),
		RateBurst:         getEnvAsInt("RATE_LIMIT_BURST", 40),
	}

	validate(cfg)

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	str := getEnv(key, "")
	if val, err := strconv.Atoi(str); err == nil {
		return val
	}
	return fallback
}

func minutes(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Minute
}

// validate ensures the server won't crash due to misconfiguration
func validate(cfg *Config) {
	if cfg.MaxConcurrentJobs < 1 {
		log.Println("Warning: MAX_CONCURRENT_JOBS must be at least 1, resetting to 3")
		cfg.MaxConcurrentJobs = 3
	}
	if cfg.WipeHour < 0 || cfg.WipeHour > 23 {
		log.Println("Warning: WIPE_HOUR out of range, resetting to 4")
		cfg.WipeHour = 4
	}
	if cfg.RetainFor < cfg.SweepInterval {
		// The sweeper must never delete a file a running job is still writing.
		log.Println("Warning: RETAIN_FOR_SECONDS below SWEEP_INTERVAL_MINUTES, raising to match")
		cfg.RetainFor = cfg.SweepInterval
	}
}
