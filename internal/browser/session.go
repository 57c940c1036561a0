// Package browser owns the automated browser session against the Prime
// Video site: connection lifecycle, the login state machine, and the
// watch-history scrape.
//
// One Session wraps exactly one chromedp browser context. All automation is
// issued sequentially under the session mutex; a second concurrent
// operation against the same session is a programming error prevented by
// that exclusive ownership.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultHistoryURL is the Prime Video watch-history page.
const DefaultHistoryURL = "https://www.primevideo.com/settings/watch-history"

const (
	defaultNavTimeout  = 30 * time.Second
	defaultElemTimeout = 10 * time.Second
)

// Config controls session behavior.
type Config struct {
	Headless   bool
	UserAgent  string
	HistoryURL string
	// NavTimeout bounds a single navigation or element wait.
	NavTimeout time.Duration
	// ManualLoginTimeout is the ceiling on waiting for the operator to
	// finish an interactive login.
	ManualLoginTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HistoryURL == "" {
		c.HistoryURL = DefaultHistoryURL
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = defaultNavTimeout
	}
	if c.ManualLoginTimeout <= 0 {
		c.ManualLoginTimeout = 5 * time.Minute
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
	return c
}

// Session is the exclusive owner of one browser-automation connection.
// The zero state is disconnected; Start connects, Login authenticates, and
// Shutdown tears the connection down deterministically.
type Session struct {
	mu  sync.Mutex
	cfg Config

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	browserCtx    context.Context

	authenticated bool
}

// NewSession creates a disconnected session.
func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg.withDefaults()}
}

// Start establishes the browser connection and probes it with a blank
// navigation. Failure is fatal to the run; callers may Restart and retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	if s.browserCtx != nil {
		return &Error{Op: "start", Err: fmt.Errorf("session already started")}
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(s.cfg.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	probeCtx, probeCancel := context.WithTimeout(browserCtx, s.cfg.NavTimeout)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return &Error{Op: "start", Err: err}
	}

	s.allocCancel = allocCancel
	s.browserCancel = browserCancel
	s.browserCtx = browserCtx
	s.authenticated = false
	return nil
}

// Shutdown releases the browser connection. Safe to call on a session that
// never started.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownLocked()
	return nil
}

func (s *Session) shutdownLocked() {
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.browserCtx = nil
	s.authenticated = false
}

// Restart tears the connection down and establishes a fresh one, dropping
// any authenticated state. Used for session recovery by callers that want
// to retry a whole login.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownLocked()
	return s.startLocked(ctx)
}

// Authenticated reports whether a login has been verified on this
// connection.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// run executes automation actions sequentially with a per-call timeout.
// Callers must hold s.mu.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.browserCtx == nil {
		return &Error{Op: "run", Err: fmt.Errorf("session not started")}
	}

	// The browser context outlives individual calls; the caller's ctx and
	// the timeout bound this one.
	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// currentURL reads the page location. Callers must hold s.mu.
func (s *Session) currentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, s.cfg.NavTimeout, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}
