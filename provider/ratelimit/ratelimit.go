// Package ratelimit wraps a model.Client with an AIMD-style adaptive token
// bucket: it estimates the token cost of each request, blocks callers until
// capacity is available, and backs off its effective tokens-per-minute
// budget when the provider signals rate limiting. It is process-local —
// multi-process coordination is deliberately out of scope for the core.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/brightfield-labs/deepresearch/model"
)

// Limiter applies adaptive rate limiting on top of a model.Client.
type Limiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64

	onBackoff func(newTPM float64)
	onProbe   func(newTPM float64)
}

// Options configures a Limiter's starting and bound tokens-per-minute rate.
type Options struct {
	InitialTPM   float64
	MinTPM       float64
	MaxTPM       float64
	RecoveryRate float64 // fraction of headroom reclaimed per successful call, e.g. 0.1

	OnBackoff func(newTPM float64)
	OnProbe   func(newTPM float64)
}

// New constructs a Limiter with the given Options, defaulting any unset
// bound to a conservative value.
func New(opts Options) *Limiter {
	if opts.InitialTPM <= 0 {
		opts.InitialTPM = 60_000
	}
	if opts.MinTPM <= 0 {
		opts.MinTPM = 5_000
	}
	if opts.MaxTPM <= 0 {
		opts.MaxTPM = 600_000
	}
	if opts.RecoveryRate <= 0 {
		opts.RecoveryRate = 0.1
	}
	l := &Limiter{
		currentTPM:   opts.InitialTPM,
		minTPM:       opts.MinTPM,
		maxTPM:       opts.MaxTPM,
		recoveryRate: opts.RecoveryRate,
		onBackoff:    opts.OnBackoff,
		onProbe:      opts.OnProbe,
	}
	l.limiter = rate.NewLimiter(rate.Limit(opts.InitialTPM/60), int(opts.InitialTPM))
	return l
}

// backoff halves the effective rate (AIMD multiplicative decrease), never
// below minTPM, and applies it to the underlying token-bucket limiter.
func (l *Limiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentTPM = max(l.currentTPM/2, l.minTPM)
	l.limiter.SetLimit(rate.Limit(l.currentTPM / 60))
	if l.onBackoff != nil {
		l.onBackoff(l.currentTPM)
	}
}

// probe additively increases the effective rate after a successful call,
// never above maxTPM.
func (l *Limiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	headroom := l.maxTPM - l.currentTPM
	l.currentTPM = min(l.currentTPM+headroom*l.recoveryRate, l.maxTPM)
	l.limiter.SetLimit(rate.Limit(l.currentTPM / 60))
	if l.onProbe != nil {
		l.onProbe(l.currentTPM)
	}
}

// estimateTokens approximates the token cost of a request for bucket
// accounting purposes; it need not be exact, only monotone in request size.
func estimateTokens(req model.Request) int {
	n := req.MaxTokens
	if n <= 0 {
		n = 1024
	}
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok {
				n += len(tp.Text) / 4
			}
		}
	}
	return n
}

// Wrap returns a model.Client that rate-limits calls to next.
func (l *Limiter) Wrap(next model.Client) model.Client {
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next    model.Client
	limiter *Limiter
}

func (c *limitedClient) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	cost := estimateTokens(req)
	if b := c.limiter.limiter.Burst(); cost > b {
		cost = b
	}
	if err := c.limiter.limiter.WaitN(ctx, cost); err != nil {
		return nil, err
	}
	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, model.ErrRateLimited) {
			c.limiter.backoff()
		}
		return nil, err
	}
	c.limiter.probe()
	return resp, nil
}

func (c *limitedClient) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	cost := estimateTokens(req)
	if b := c.limiter.limiter.Burst(); cost > b {
		cost = b
	}
	if err := c.limiter.limiter.WaitN(ctx, cost); err != nil {
		return nil, err
	}
	return c.next.Stream(ctx, req)
}

// RetryWithBackoff retries fn up to maxAttempts times with exponential
// backoff whenever retryable(err) reports true, stopping immediately on any
// other error. This implements spec §7's "retried with exponential backoff
// up to 3 attempts" policy for TransientExternal failures; callers supply
// their own package's transient-error classification as retryable so this
// package need not know about every caller's error taxonomy.
func RetryWithBackoff(ctx context.Context, maxAttempts int, base time.Duration, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		wait := base * time.Duration(1<<attempt)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
