package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrCircuitOpen means the source's breaker rejected the request.
	ErrCircuitOpen = errors.New("circuit open for source")

	// ErrPermanentStatus means the server answered with a non-retryable
	// status (4xx other than 429).
	ErrPermanentStatus = errors.New("permanent http status")
)

const userAgent = "Kvartometr Listings Pipeline/1.0"

// Options configure the per-source fetch discipline.
type Options struct {
	Politeness       time.Duration
	Timeout          time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type sourceState struct {
	mu          sync.Mutex
	lastRequest time.Time
	breaker     *Breaker
}

// Controller wraps an HTTP client with politeness delay, retry with
// exponential backoff and a circuit breaker, all tracked per source.
type Controller struct {
	client  *http.Client
	logger  *logrus.Logger
	opts    Options
	mu      sync.Mutex
	sources map[string]*sourceState
}

func NewController(opts Options, logger *logrus.Logger) *Controller {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BreakerCooldown == 0 {
		// A tripped source stays quiet long enough that a typical run
		// finishes without hammering it again.
		opts.BreakerCooldown = 5 * time.Minute
	}
	return &Controller{
		client:  &http.Client{Timeout: opts.Timeout},
		logger:  logger,
		opts:    opts,
		sources: make(map[string]*sourceState),
	}
}

func (c *Controller) source(id string) *sourceState {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sources[id]
	if !ok {
		s = &sourceState{
			breaker: NewBreaker(c.opts.BreakerThreshold, c.opts.BreakerCooldown),
		}
		c.sources[id] = s
	}
	return s
}

// BreakerState exposes the current circuit state of a source.
func (c *Controller) BreakerState(sourceID string) BreakerState {
	return c.source(sourceID).breaker.State()
}

// Get fetches one URL on behalf of sourceID and returns the body.
// Transient failures (network errors, timeouts, 5xx, 429) are retried
// with exponential backoff; exhaustion counts one failure against the
// source's breaker. Non-retryable statuses fail immediately.
func (c *Controller) Get(ctx context.Context, sourceID, url string) ([]byte, error) {
	s := c.source(sourceID)

	if !s.breaker.Allow() {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, sourceID)
	}

	delay := c.opts.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err := c.waitPoliteness(ctx, s); err != nil {
			return nil, err
		}

		body, err := c.doRequest(ctx, url)
		if err == nil {
			s.breaker.OnSuccess()
			return body, nil
		}
		if errors.Is(err, ErrPermanentStatus) || ctx.Err() != nil {
			s.breaker.OnFailure()
			return nil, err
		}

		lastErr = err
		if attempt < c.opts.MaxAttempts {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"source":  sourceID,
				"url":     url,
				"attempt": attempt,
				"backoff": delay.String(),
			}).Warn("Transient fetch failure, retrying")

			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}
	}

	s.breaker.OnFailure()
	return nil, fmt.Errorf("fetch failed after %d attempts: %w", c.opts.MaxAttempts, lastErr)
}

func (c *Controller) waitPoliteness(ctx context.Context, s *sourceState) error {
	s.mu.Lock()
	elapsed := time.Since(s.lastRequest)
	wait := c.opts.Politeness - elapsed
	s.lastRequest = time.Now().Add(max(wait, 0))
	s.mu.Unlock()

	if wait > 0 {
		return sleepCtx(ctx, wait)
	}
	return nil
}

func (c *Controller) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanentStatus, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return body, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("transient status %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: %d", ErrPermanentStatus, resp.StatusCode)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
