package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig(maxRetries int) Config {
	return Config{
		MaxRetries: maxRetries,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   100 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     false, // Disable jitter for predictable testing
		Name:       "test",
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 5 {
		t.Errorf("Expected MaxRetries=5, got %d", config.MaxRetries)
	}

	if config.BaseDelay != 500*time.Millisecond {
		t.Errorf("Expected BaseDelay=500ms, got %v", config.BaseDelay)
	}

	if config.MaxDelay != 10*time.Second {
		t.Errorf("Expected MaxDelay=10s, got %v", config.MaxDelay)
	}

	if !config.Jitter {
		t.Error("Expected Jitter=true")
	}

	if config.RetryIf == nil {
		t.Error("Expected RetryIf to be set")
	}
}

func TestDo_Success(t *testing.T) {
	result := Do(context.Background(), testConfig(2), func() error {
		return nil
	})

	if !result.Success {
		t.Error("Expected success=true")
	}

	if result.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", result.Attempts)
	}

	if result.LastError != nil {
		t.Errorf("Expected no error, got %v", result.LastError)
	}
}

func TestDo_EventualSuccess(t *testing.T) {
	attempts := 0
	result := Do(context.Background(), testConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})

	if !result.Success {
		t.Error("Expected success=true")
	}

	if result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}

	if result.TotalDuration == 0 {
		t.Error("Expected non-zero total duration")
	}
}

func TestDo_AllAttemptsFailure(t *testing.T) {
	expectedError := errors.New("persistent failure")
	result := Do(context.Background(), testConfig(2), func() error {
		return expectedError
	})

	if result.Success {
		t.Error("Expected success=false")
	}

	if result.Attempts != 3 { // MaxRetries + 1
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}

	if result.LastError != expectedError {
		t.Errorf("Expected last error to be %v, got %v", expectedError, result.LastError)
	}
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	config := testConfig(4)
	config.RetryIf = IsRetryableError

	result := Do(context.Background(), config, func() error {
		return errors.New("pq: password authentication failed for user \"peon\"")
	})

	if result.Success {
		t.Error("Expected success=false")
	}

	if result.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", result.Attempts)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	config := testConfig(5)
	config.BaseDelay = 100 * time.Millisecond
	config.MaxDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := Do(ctx, config, func() error {
		return errors.New("always fails")
	})

	if result.Success {
		t.Error("Expected success=false due to context cancellation")
	}

	if result.LastError != context.DeadlineExceeded {
		t.Errorf("Expected context.DeadlineExceeded, got %v", result.LastError)
	}

	if result.Attempts > 2 {
		t.Errorf("Expected few attempts due to quick timeout, got %d", result.Attempts)
	}
}

func TestCalculateDelay(t *testing.T) {
	config := Config{
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}

	delay0 := calculateDelay(config, 0)
	delay1 := calculateDelay(config, 1)
	delay2 := calculateDelay(config, 2)

	if delay0 != 1*time.Second {
		t.Errorf("Expected delay0=1s, got %v", delay0)
	}

	if delay1 != 2*time.Second {
		t.Errorf("Expected delay1=2s, got %v", delay1)
	}

	if delay2 != 4*time.Second {
		t.Errorf("Expected delay2=4s, got %v", delay2)
	}

	// Capped at MaxDelay
	delay10 := calculateDelay(config, 10)
	if delay10 != 10*time.Second {
		t.Errorf("Expected delay10=10s (capped), got %v", delay10)
	}
}

func TestCalculateDelay_WithJitter(t *testing.T) {
	config := Config{
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}

	delay := calculateDelay(config, 1)
	expectedBase := 2 * time.Second
	tolerance := 200 * time.Millisecond // 10% of 2s

	diff := delay - expectedBase
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("delay %v too far from expected %v", delay, expectedBase)
	}
}

func TestIsRetryableError(t *testing.T) {
	retryableErrors := []error{
		errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"),
		errors.New("pq: the database system is starting up"),
		errors.New("database is locked"),
		errors.New("DNS lookup failed"),
		errors.New("context deadline exceeded"),
	}

	for _, err := range retryableErrors {
		if !IsRetryableError(err) {
			t.Errorf("Expected %v to be retryable", err)
		}
	}

	nonRetryableErrors := []error{
		errors.New("invalid input"),
		errors.New("permission denied"),
		errors.New("pq: database \"peon\" does not exist"),
	}

	for _, err := range nonRetryableErrors {
		if IsRetryableError(err) {
			t.Errorf("Expected %v to NOT be retryable", err)
		}
	}

	if IsRetryableError(nil) {
		t.Error("Expected nil error to NOT be retryable")
	}
}
