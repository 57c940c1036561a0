package browser

import "fmt"

// Error reports an automation-layer failure unrelated to authentication:
// navigation failure, element not found within its bounded wait, or a lost
// driver connection. Fatal to the run; callers may Restart and retry.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AuthError reports that a login could not be established or verified,
// including two-factor challenges, which are never resolved automatically.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed: %s", e.Reason)
}
