package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
// Feature services fail in short bursts, so the delay between attempts is
// fixed rather than growing.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// Delay is the pause between two attempts.
	Delay time.Duration
}

// DefaultRetryConfig returns the default retry configuration: 10 attempts, 100ms apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 10,
		Delay:       100 * time.Millisecond,
	}
}

// retryFixed executes fn until it succeeds, returns a non-retryable class, or
// the attempt budget is spent. classify is consulted after every failure.
// It returns the number of attempts made alongside the final error.
func retryFixed(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func(attempt int) error, classify func(error) ErrorClass) (int, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	var lastClass ErrorClass

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return attempt, nil
		}

		lastErr = err
		lastClass = classify(err)

		if !shouldRetry(lastClass) {
			return attempt, lastErr
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		harvestRetriesTotal.WithLabelValues(string(lastClass)).Inc()
		logger.Warn().
			Err(err).
			Str("error_class", string(lastClass)).
			Int("attempt", attempt).
			Dur("delay", cfg.Delay).
			Msg("Retrying request")

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(lastClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry delay")
			return attempt, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	harvestRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	logger.Error().
		Err(lastErr).
		Str("error_class", string(lastClass)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
