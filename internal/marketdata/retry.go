package marketdata

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"
)

// RetryConfig bounds the retry behavior of a RetryProvider.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultRetryConfig is used when no config is supplied.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// RetryProvider wraps a Provider with bounded exponential backoff on
// transient upstream failures. DataUnavailableError is never retried: a
// missing chain is a market condition, not an outage.
type RetryProvider struct {
	provider Provider
	logger   *log.Logger
	config   RetryConfig
}

// Ensure RetryProvider implements Provider at compile time.
var _ Provider = (*RetryProvider)(nil)

// NewRetryProvider creates a retrying wrapper around a Provider.
func NewRetryProvider(provider Provider, logger *log.Logger, config ...RetryConfig) *RetryProvider {
	cfg := DefaultRetryConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	return &RetryProvider{
		provider: provider,
		logger:   logger,
		config:   cfg,
	}
}

// withRetry runs fn with the configured retry budget and backoff schedule.
func withRetry[T any](ctx context.Context, r *RetryProvider, op string, fn func() (T, error)) (T, error) {
	var zero T

	opCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if opCtx.Err() != nil {
			return zero, fmt.Errorf("%s timed out after %v: %w", op, r.config.Timeout, opCtx.Err())
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}

		lastErr = err
		if IsDataUnavailable(err) {
			return zero, err
		}

		if !isTransientError(err) || attempt == r.config.MaxRetries {
			break
		}

		if r.logger != nil {
			r.logger.Printf("%s attempt %d/%d failed (%v), retrying in %v",
				op, attempt+1, r.config.MaxRetries+1, err, backoff)
		}
		select {
		case <-time.After(backoff):
			backoff = r.nextBackoff(backoff)
		case <-opCtx.Done():
			return zero, fmt.Errorf("%s timed out during backoff: %w", op, opCtx.Err())
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, r.config.MaxRetries+1, lastErr)
}

func (r *RetryProvider) nextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > r.config.MaxBackoff {
		backoff = r.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// GetCurrentPrice retries the underlying call on transient failures.
func (r *RetryProvider) GetCurrentPrice(symbol string) (float64, error) {
	return withRetry(context.Background(), r, "GetCurrentPrice", func() (float64, error) {
		return r.provider.GetCurrentPrice(symbol)
	})
}

// GetHistoricalCloses retries the underlying call on transient failures.
func (r *RetryProvider) GetHistoricalCloses(symbol string, lookbackDays int) ([]float64, error) {
	return withRetry(context.Background(), r, "GetHistoricalCloses", func() ([]float64, error) {
		return r.provider.GetHistoricalCloses(symbol, lookbackDays)
	})
}

// GetOptionChain retries the underlying call on transient failures.
func (r *RetryProvider) GetOptionChain(symbol, expiration string) (*Chain, error) {
	return withRetry(context.Background(), r, "GetOptionChain", func() (*Chain, error) {
		return r.provider.GetOptionChain(symbol, expiration)
	})
}

// GetOptionChainCtx retries the underlying call on transient failures.
func (r *RetryProvider) GetOptionChainCtx(ctx context.Context, symbol, expiration string) (*Chain, error) {
	return withRetry(ctx, r, "GetOptionChain", func() (*Chain, error) {
		return r.provider.GetOptionChainCtx(ctx, symbol, expiration)
	})
}

// GetAvailableExpirations retries the underlying call on transient failures.
func (r *RetryProvider) GetAvailableExpirations(symbol string) ([]string, error) {
	return withRetry(context.Background(), r, "GetAvailableExpirations", func() ([]string, error) {
		return r.provider.GetAvailableExpirations(symbol)
	})
}
