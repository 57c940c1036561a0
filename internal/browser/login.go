package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Form selectors on the Amazon sign-in flow. Amazon serves two variants of
// the field names depending on region and experiment bucket.
const (
	emailSelector    = "input[name='email'], input[name='ap_email']"
	continueSelector = "#continue"
	passwordSelector = "input[name='password'], input[name='ap_password']"
	submitSelector   = "#signInSubmit"
	twoFactorMarker  = "#auth-mfa-otpcode, .cvf-widget-input-code"
	// historyMarker identifies the watch-history item list; its presence
	// backs up the URL check during login verification.
	historyMarker = "[data-automation-id='activity-history-items'], div[class*='watch-history']"
)

// LoginMethod selects how the session authenticates.
type LoginMethod interface {
	login(ctx context.Context, s *Session) error
}

// ManualLogin navigates to the history page and waits for the operator to
// complete the interactive login. Confirm signals completion; when it is
// nil, only the configured ceiling timeout ends the wait.
type ManualLogin struct {
	Confirm <-chan struct{}
}

// AutomatedLogin drives the Amazon sign-in form with stored credentials.
// A two-factor challenge always fails the login; it is never answered
// automatically.
type AutomatedLogin struct {
	Email    string
	Password string
}

// Login authenticates the session using the given method. Verification
// failures surface as *AuthError and require a human retry; automation
// failures surface as *Error. Neither is retried internally.
func (s *Session) Login(ctx context.Context, method LoginMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browserCtx == nil {
		return &Error{Op: "login", Err: fmt.Errorf("session not started")}
	}
	if err := method.login(ctx, s); err != nil {
		return err
	}
	s.authenticated = true
	return nil
}

func (m ManualLogin) login(ctx context.Context, s *Session) error {
	if err := s.run(ctx, s.cfg.NavTimeout, chromedp.Navigate(s.cfg.HistoryURL)); err != nil {
		return &Error{Op: "navigate", Err: err}
	}

	// Block until the operator confirms or the ceiling expires, then check
	// where the browser actually ended up.
	timer := time.NewTimer(s.cfg.ManualLoginTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.Confirm:
	case <-timer.C:
	}

	loc, err := s.currentURL(ctx)
	if err != nil {
		return &Error{Op: "verify", Err: err}
	}
	return verifyHistoryURL(loc)
}

func (m AutomatedLogin) login(ctx context.Context, s *Session) error {
	loginURL := fmt.Sprintf("https://www.%s/ap/signin", loginDomain(m.Email))

	steps := []struct {
		op     string
		action chromedp.Action
	}{
		{"navigate", chromedp.Navigate(loginURL)},
		{"fill email", chromedp.SendKeys(emailSelector, m.Email, chromedp.ByQuery)},
		{"continue", chromedp.Click(continueSelector, chromedp.ByQuery)},
		{"fill password", chromedp.SendKeys(passwordSelector, m.Password, chromedp.ByQuery)},
		{"submit", chromedp.Click(submitSelector, chromedp.ByQuery)},
	}
	for _, step := range steps {
		if err := s.run(ctx, defaultElemTimeout, step.action); err != nil {
			return &Error{Op: step.op, Err: err}
		}
	}

	// Two-factor challenges are a terminal condition by design.
	present, err := s.anyPresent(ctx, twoFactorMarker)
	if err != nil {
		return &Error{Op: "detect 2fa", Err: err}
	}
	if present {
		return &AuthError{Reason: "two-factor challenge detected, manual login required"}
	}

	return s.verifyLoggedIn(ctx)
}

// verifyLoggedIn navigates to the history page and checks three signals:
// the URL names the history page and no sign-in path, no login form fields
// remain, and the history page markers are present. The extra checks reduce
// false positives from URL string matching alone.
func (s *Session) verifyLoggedIn(ctx context.Context) error {
	if err := s.run(ctx, s.cfg.NavTimeout, chromedp.Navigate(s.cfg.HistoryURL)); err != nil {
		return &Error{Op: "navigate", Err: err}
	}

	loc, err := s.currentURL(ctx)
	if err != nil {
		return &Error{Op: "verify", Err: err}
	}
	if err := verifyHistoryURL(loc); err != nil {
		return err
	}

	formPresent, err := s.anyPresent(ctx, emailSelector+", "+passwordSelector)
	if err != nil {
		return &Error{Op: "verify", Err: err}
	}
	if formPresent {
		return &AuthError{Reason: "login form still present after sign-in"}
	}

	markerPresent, err := s.anyPresent(ctx, historyMarker)
	if err != nil {
		return &Error{Op: "verify", Err: err}
	}
	if !markerPresent {
		return &AuthError{Reason: "watch-history content not found after sign-in"}
	}
	return nil
}

// anyPresent reports whether any element matches sel, without waiting for
// one to appear. Callers must hold s.mu.
func (s *Session) anyPresent(ctx context.Context, sel string) (bool, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, defaultElemTimeout,
		chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// loginDomain derives the regional Amazon endpoint from the email's domain
// suffix. Unrecognized suffixes fall back to the global site.
func loginDomain(email string) string {
	switch {
	case strings.Contains(email, ".co.uk"):
		return "amazon.co.uk"
	case strings.Contains(email, ".de"):
		return "amazon.de"
	case strings.Contains(email, ".it"):
		return "amazon.it"
	default:
		return "amazon.com"
	}
}

// verifyHistoryURL accepts only a URL that names the watch-history page and
// does not match a sign-in path.
func verifyHistoryURL(raw string) error {
	if isSignInURL(raw) {
		return &AuthError{Reason: fmt.Sprintf("still on a sign-in page: %s", raw)}
	}
	if !strings.Contains(raw, "watch-history") {
		return &AuthError{Reason: fmt.Sprintf("not on the watch-history page: %s", raw)}
	}
	return nil
}

func isSignInURL(raw string) bool {
	return strings.Contains(raw, "signin") ||
		strings.Contains(raw, "/login") ||
		strings.Contains(raw, "/auth")
}
