// Package limiter provides token-bucket rate limiting for model calls. The
// turn resolver is single-threaded, so only the token budget is limited;
// there is no concurrency semaphore.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gameagent/pkg/llm/llmerrors"
	"gameagent/pkg/logx"
	"gameagent/pkg/metrics"
)

// bufferFactor shrinks the advertised capacity to absorb token estimation
// inaccuracies.
const bufferFactor = 0.9

// refillInterval is how often the bucket refills; one tenth of the
// per-minute budget is added each tick.
const refillInterval = 6 * time.Second

// Stats represents current limiter state.
type Stats struct {
	Model           string `json:"model"`
	AvailableTokens int    `json:"available_tokens"`
	MaxCapacity     int    `json:"max_capacity"`
	LimitHits       int64  `json:"limit_hits"`
}

// TokenBucket implements per-model token budget limiting.
type TokenBucket struct {
	mu sync.Mutex

	model           string
	availableTokens int
	tokensPerRefill int
	maxCapacity     int
	limitHits       int64

	recorder metrics.Recorder
	logger   *logx.Logger
	cancel   context.CancelFunc
}

// NewTokenBucket creates a limiter for one model. tokensPerMinute <= 0
// disables limiting: Acquire always succeeds immediately. A nil recorder
// disables throttle metrics.
func NewTokenBucket(model string, tokensPerMinute int, recorder metrics.Recorder) *TokenBucket {
	maxCapacity := int(float64(tokensPerMinute) * bufferFactor)
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	bucket := &TokenBucket{
		model:           model,
		availableTokens: maxCapacity,
		tokensPerRefill: tokensPerMinute / 10,
		maxCapacity:     maxCapacity,
		recorder:        recorder,
		logger:          logx.NewLogger("limiter"),
		cancel:          cancel,
	}

	if tokensPerMinute > 0 {
		bucket.startRefillTimer(ctx)
	}
	return bucket
}

// Acquire blocks until the requested tokens are available or the context is
// cancelled. Tokens are consumed and not refunded.
func (l *TokenBucket) Acquire(ctx context.Context, tokens int) error {
	if l.maxCapacity <= 0 {
		return nil
	}
	if tokens > l.maxCapacity {
		l.recorder.IncThrottle(l.model, "over_capacity")
		return llmerrors.NewError(llmerrors.ErrorTypeRateLimit,
			fmt.Sprintf("requested %d tokens exceeds bucket capacity %d for model %s",
				tokens, l.maxCapacity, l.model))
	}

	firstAttempt := true
	for {
		l.mu.Lock()
		if l.availableTokens >= tokens {
			l.availableTokens -= tokens
			l.mu.Unlock()
			return nil
		}
		if firstAttempt {
			l.limitHits++
			l.recorder.IncThrottle(l.model, "token_budget")
			l.logger.Info("Token limit hit for %s, waiting for refill (need %d, have %d)",
				l.model, tokens, l.availableTokens)
			firstAttempt = false
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, ctx.Err(),
				"rate limit wait cancelled")
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// startRefillTimer starts a background goroutine that refills tokens on each
// tick until Stop is called.
func (l *TokenBucket) startRefillTimer(ctx context.Context) {
	ticker := time.NewTicker(refillInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.refill()
			}
		}
	}()
}

// refill adds one tick's worth of tokens, capped at capacity.
func (l *TokenBucket) refill() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.availableTokens += l.tokensPerRefill
	if l.availableTokens > l.maxCapacity {
		l.availableTokens = l.maxCapacity
	}
}

// GetStats returns current limiter statistics.
func (l *TokenBucket) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Model:           l.model,
		AvailableTokens: l.availableTokens,
		MaxCapacity:     l.maxCapacity,
		LimitHits:       l.limitHits,
	}
}

// Stop cancels the refill timer.
func (l *TokenBucket) Stop() {
	l.cancel()
}
