package provider

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"
)

const (
	retryBaseDelay    = 1 * time.Second
	retryMaxDelay     = 32 * time.Second
	retryJitterFactor = 0.3
)

// retryingProvider bounds each call with a timeout and retries retryable
// ProviderErrors with exponential backoff and jitter.
type retryingProvider struct {
	next       Provider
	maxRetries int
	timeout    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps p. maxRetries is the number of extra attempts; a zero
// timeout leaves the caller's context untouched.
func WithRetry(p Provider, maxRetries int, timeout time.Duration) Provider {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retryingProvider{next: p, maxRetries: maxRetries, timeout: timeout, sleep: sleepCtx}
}

func (r *retryingProvider) Name() string {
	return r.next.Name()
}

func (r *retryingProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, calculateBackoff(attempt)); err != nil {
				return nil, err
			}
		}

		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var perr *ProviderError
		if !errors.As(err, &perr) || !perr.IsRetryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// calculateBackoff returns the backoff duration with jitter for a given attempt
func calculateBackoff(attempt int) time.Duration {
	// 1s, 2s, 4s, 8s, 16s, capped at retryMaxDelay
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 31 {
		shift = 31
	}
	delay := time.Duration(1<<uint(shift)) * retryBaseDelay
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	jitter := time.Duration(float64(delay) * retryJitterFactor * (cryptoRandFloat64()*2 - 1))
	return delay + jitter
}

// cryptoRandFloat64 returns a random float64 in [0.0, 1.0)
func cryptoRandFloat64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0.5
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}
