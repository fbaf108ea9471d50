package marketdata

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerProvider wraps a Provider with circuit breaker functionality
// so a flapping upstream cannot stall an entire batch evaluation.
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerProvider implements Provider at compile time.
var _ Provider = (*CircuitBreakerProvider)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	provider Provider,
	fn func(Provider) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(provider) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with sensible defaults.
func NewCircuitBreakerProvider(provider Provider) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(provider, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings.
func NewCircuitBreakerProviderWithSettings(provider Provider, settings CircuitBreakerSettings) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
		// A missing symbol or date is a market condition, not an
		// upstream failure; it must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || IsDataUnavailable(err)
		},
	}

	return &CircuitBreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// GetCurrentPrice wraps the underlying provider call with circuit breaker.
func (c *CircuitBreakerProvider) GetCurrentPrice(symbol string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p Provider) (float64, error) {
		return p.GetCurrentPrice(symbol)
	})
}

// GetHistoricalCloses wraps the underlying provider call with circuit breaker.
func (c *CircuitBreakerProvider) GetHistoricalCloses(symbol string, lookbackDays int) ([]float64, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p Provider) ([]float64, error) {
		return p.GetHistoricalCloses(symbol, lookbackDays)
	})
}

// GetOptionChain wraps the underlying provider call with circuit breaker.
func (c *CircuitBreakerProvider) GetOptionChain(symbol, expiration string) (*Chain, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p Provider) (*Chain, error) {
		return p.GetOptionChain(symbol, expiration)
	})
}

// GetOptionChainCtx wraps the underlying provider call with circuit breaker.
func (c *CircuitBreakerProvider) GetOptionChainCtx(ctx context.Context, symbol, expiration string) (*Chain, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p Provider) (*Chain, error) {
		return p.GetOptionChainCtx(ctx, symbol, expiration)
	})
}

// GetAvailableExpirations wraps the underlying provider call with circuit breaker.
func (c *CircuitBreakerProvider) GetAvailableExpirations(symbol string) ([]string, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p Provider) ([]string, error) {
		return p.GetAvailableExpirations(symbol)
	})
}
