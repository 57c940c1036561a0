package provider

import "fmt"

// TransportError reports that an HTTP exchange with a provider could not
// complete at all: connection failure, timeout, or a body that could not be
// decoded.
type TransportError struct {
	Service ServiceType
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MetadataError reports that a provider responded but signaled failure with
// a non-success status. A repeated 401 after reauthentication also surfaces
// as a MetadataError.
type MetadataError struct {
	Service ServiceType
	Status  int
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("%s: api error: status %d", e.Service, e.Status)
}

// AuthError reports that authentication with a provider could not be
// established.
type AuthError struct {
	Service ServiceType
	Reason  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Service, e.Reason)
}
