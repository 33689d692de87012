package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures retry behavior with exponential backoff
type Config struct {
	MaxRetries int           `koanf:"max_retries"` // Maximum number of retry attempts (default: 5)
	BaseDelay  time.Duration `koanf:"base_delay"`  // Base delay between retries (default: 500ms)
	MaxDelay   time.Duration `koanf:"max_delay"`   // Maximum delay between retries (default: 10s)
	Multiplier float64       `koanf:"multiplier"`  // Exponential backoff multiplier (default: 2.0)
	Jitter     bool          `koanf:"jitter"`      // Add up to 10% random jitter (default: true)

	// Name labels log lines for this operation.
	Name string `koanf:"-"`
	// RetryIf decides whether an error is worth another attempt. nil retries everything.
	RetryIf func(error) bool `koanf:"-"`
}

// Result contains information about the retry operation
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
	Success       bool
}

// DefaultConfig returns the backoff used while waiting for dependencies at startup
func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
		RetryIf:    IsRetryableError,
	}
}

// Do executes operation until it succeeds, the retries run out, the error is
// not retryable, or ctx is done.
func Do(ctx context.Context, config Config, operation func() error) Result {
	startTime := time.Now()
	result := Result{}

	name := config.Name
	if name == "" {
		name = "operation"
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := operation()
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)
			if attempt > 0 {
				log.Info().Str("op", name).Int("retries", attempt).Dur("elapsed", result.TotalDuration).Msg("operation succeeded after retries")
			}
			return result
		}
		result.LastError = err

		if attempt >= config.MaxRetries || (config.RetryIf != nil && !config.RetryIf(err)) {
			break
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}

		delay := calculateDelay(config, attempt)
		log.Warn().
			Err(err).
			Str("op", name).
			Int("attempt", attempt+1).
			Int("max_attempts", config.MaxRetries+1).
			Dur("backoff", delay).
			Msg("operation failed, retrying")

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		case <-time.After(delay):
		}
	}

	result.TotalDuration = time.Since(startTime)
	log.Error().Err(result.LastError).Str("op", name).Int("attempts", result.Attempts).Msg("operation failed")
	return result
}

// calculateDelay calculates the delay for the next retry attempt using exponential backoff
func calculateDelay(config Config, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitterRange := delay * 0.1
		jitter := (rand.Float64() - 0.5) * 2 * jitterRange
		delay += jitter

		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// IsRetryableError determines if an error looks transient
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"timeout",
		"temporary failure",
		"the database system is starting up",
		"too many connections",
		"database is locked",
		"dns lookup failed",
		"no such host",
		"network unreachable",
		"broken pipe",
		"context deadline exceeded",
	}

	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}

	return false
}
