package fetcher

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"
)

// RetryPolicy defines retry behavior with exponential backoff and jitter.
type RetryPolicy struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	RetryableStatusCodes []int
}

// NewRetryPolicy returns the default policy used by the HTTP fetcher.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       6,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatusCodes: []int{
			408, // Request Timeout
			429, // Too Many Requests
			500, // Internal Server Error
			502, // Bad Gateway
			503, // Service Unavailable
			504, // Gateway Timeout
			525, // SSL Handshake Failed (Cloudflare)
		},
	}
}

// neverRetryStatusCodes fail immediately regardless of attempt count.
var neverRetryStatusCodes = map[int]bool{
	400: true,
	401: true,
	403: true,
	405: true,
	410: true,
}

func (p *RetryPolicy) isRetryableStatus(code int) bool {
	for _, c := range p.RetryableStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// ShouldRetry reports whether another attempt is warranted.
func (p *RetryPolicy) ShouldRetry(attempt int, statusCode int, err error) bool {
	if attempt >= p.MaxAttempts-1 {
		return false
	}
	if statusCode > 0 {
		if neverRetryStatusCodes[statusCode] {
			return false
		}
		return p.isRetryableStatus(statusCode)
	}
	if err != nil {
		return isRetryableNetError(err)
	}
	return false
}

// CalculateBackoff returns the jittered delay before the given attempt.
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	// ±25% jitter
	backoff += backoff * 0.25 * (rand.Float64()*2 - 1)
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}
	return time.Duration(backoff)
}

// Sleep waits out the backoff, returning early if ctx is cancelled.
func (p *RetryPolicy) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.CalculateBackoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return &CancellationError{Reason: "fetch cancelled during backoff"}
	case <-timer.C:
		return nil
	}
}

func isRetryableNetError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
