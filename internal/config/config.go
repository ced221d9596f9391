package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the paper trading
// simulator.
type Config struct {
	Port     int
	LogLevel string

	// Matching and settlement.
	FeeRateBps         int64
	ExpirationInterval time.Duration

	// Synthetic market maker.
	QuoteMode     string // "basic" or "adaptive"
	SpreadBps     int64
	VolMultiplier float64
	QuoteSize     int64

	// Algorithmic execution.
	AlgoTickInterval time.Duration
	RandomSeed       int64 // 0 seeds from the wall clock

	// Event bus.
	EventStoreCapacity int

	// HTTP server.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	feeRateBps, err := getInt64("FEE_RATE_BPS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid FEE_RATE_BPS: %w", err)
	}
	if feeRateBps < 0 {
		return nil, fmt.Errorf("invalid FEE_RATE_BPS: must not be negative")
	}

	expirationInterval, err := getDuration("EXPIRATION_INTERVAL", 1*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRATION_INTERVAL: %w", err)
	}

	quoteMode := getStr("QUOTE_MODE", "basic")
	if quoteMode != "basic" && quoteMode != "adaptive" {
		return nil, fmt.Errorf("invalid QUOTE_MODE: %q, must be basic or adaptive", quoteMode)
	}

	spreadBps, err := getInt64("SPREAD_BPS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid SPREAD_BPS: %w", err)
	}
	if spreadBps <= 0 {
		return nil, fmt.Errorf("invalid SPREAD_BPS: must be positive")
	}

	volMultiplier, err := getFloat("VOL_MULTIPLIER", 1.0)
	if err != nil {
		return nil, fmt.Errorf("invalid VOL_MULTIPLIER: %w", err)
	}

	quoteSize, err := getInt64("QUOTE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_SIZE: %w", err)
	}
	if quoteSize <= 0 {
		return nil, fmt.Errorf("invalid QUOTE_SIZE: must be positive")
	}

	algoTickInterval, err := getDuration("ALGO_TICK_INTERVAL", 1*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid ALGO_TICK_INTERVAL: %w", err)
	}

	randomSeed, err := getInt64("RANDOM_SEED", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid RANDOM_SEED: %w", err)
	}

	eventStoreCapacity, err := getInt("EVENT_STORE_CAPACITY", 10000)
	if err != nil {
		return nil, fmt.Errorf("invalid EVENT_STORE_CAPACITY: %w", err)
	}
	if eventStoreCapacity <= 0 {
		return nil, fmt.Errorf("invalid EVENT_STORE_CAPACITY: must be positive")
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:               port,
		LogLevel:           logLevel,
		FeeRateBps:         feeRateBps,
		ExpirationInterval: expirationInterval,
		QuoteMode:          quoteMode,
		SpreadBps:          spreadBps,
		VolMultiplier:      volMultiplier,
		QuoteSize:          quoteSize,
		AlgoTickInterval:   algoTickInterval,
		RandomSeed:         randomSeed,
		EventStoreCapacity: eventStoreCapacity,
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		IdleTimeout:        idleTimeout,
		ShutdownTimeout:    shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
