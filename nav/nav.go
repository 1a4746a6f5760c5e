package nav

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/sirupsen/logrus"

	"profile-messenger/config"
)

// ExhaustedError reports a page that would not load within the configured
// attempt bound. Retries cover transient network and rendering conditions
// only, never content-shape mismatches.
type ExhaustedError struct {
	URL      string
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("navigation to %s exhausted after %d attempts: %v", e.URL, e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Controller performs bounded-retry page loads with liveness verification.
type Controller struct {
	cfg    config.NavConfig
	logger *logrus.Logger
	rng    *rand.Rand

	// Overridable in tests.
	load  func(ctx context.Context, page *rod.Page, url string, timeout time.Duration) error
	sleep func(d time.Duration)
}

// NewController creates a navigation controller
func NewController(cfg config.NavConfig, logger *logrus.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		load:   loadPage,
		sleep:  time.Sleep,
	}
}

// Navigate attempts a page load, verifying after each attempt that the
// document reached a stable ready state. Failed attempts are followed by a
// randomized backoff; exhausting the attempt bound raises ExhaustedError
// carrying the last failure.
func (c *Controller) Navigate(ctx context.Context, page *rod.Page, url string) error {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.logger.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
		}).Debug("Loading page")

		lastErr = c.load(ctx, page, url, c.cfg.Timeout)
		if lastErr == nil {
			return nil
		}

		c.logger.WithError(lastErr).WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
		}).Warn("Page load failed")

		if attempt < c.cfg.MaxAttempts {
			c.sleep(c.backoff())
		}
	}

	return &ExhaustedError{URL: url, Attempts: c.cfg.MaxAttempts, LastErr: lastErr}
}

// backoff samples a pause inside the configured backoff range.
func (c *Controller) backoff() time.Duration {
	min, max := c.cfg.BackoffMin, c.cfg.BackoffMax
	if max <= min {
		return min
	}
	return min + time.Duration(c.rng.Int63n(int64(max-min)))
}

// loadPage drives a single load attempt against the real browser.
func loadPage(ctx context.Context, page *rod.Page, url string, timeout time.Duration) error {
	p := page.Context(ctx).Timeout(timeout)

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for load: %w", err)
	}

	// Liveness check: the document must have reached a stable ready state.
	state, err := p.Eval("() => document.readyState")
	if err != nil {
		return fmt.Errorf("failed to read document state: %w", err)
	}
	if s := state.Value.Str(); s != "complete" && s != "interactive" {
		return fmt.Errorf("document not ready: state %q", s)
	}

	return nil
}
