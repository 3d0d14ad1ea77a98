package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gameagent/pkg/llm/llmerrors"
	"gameagent/pkg/logx"
)

// RetryableClient wraps a Client with error-type-aware retry logic. Each
// classified error type carries its own backoff schedule.
type RetryableClient struct {
	client Client
	logger *logx.Logger
}

// NewRetryableClient wraps a raw provider client with retries.
func NewRetryableClient(client Client) *RetryableClient {
	return &RetryableClient{
		client: client,
		logger: logx.NewLogger("llm-retry"),
	}
}

// Generate implements Client with retry logic.
func (r *RetryableClient) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	var lastErr *llmerrors.Error
	var retryConfig llmerrors.RetryConfig

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := calculateDelay(attempt, retryConfig)
			r.logger.Debug("Retrying %s call in %v (attempt %d, %s)",
				r.client.ModelName(), delay, attempt, lastErr.Type)

			select {
			case <-ctx.Done():
				return GenerateResult{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := r.client.Generate(ctx, req)
		if err == nil {
			return result, nil
		}

		lastErr = llmerrors.Classify(err)
		retryConfig = lastErr.GetRetryConfig()

		if !lastErr.IsRetryable() || attempt >= retryConfig.MaxRetries {
			return GenerateResult{}, lastErr
		}
	}
}

// ModelName returns the wrapped client's model identifier.
func (r *RetryableClient) ModelName() string {
	return r.client.ModelName()
}

// calculateDelay computes exponential backoff with optional jitter.
func calculateDelay(attempt int, cfg llmerrors.RetryConfig) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}

	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay += time.Duration(rand.Int63n(int64(delay)/4 + 1)) //nolint:gosec // Jitter, not crypto
	}
	return delay
}
