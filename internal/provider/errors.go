package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential is returned when a cloud variant has no credential configured.
	ErrNoCredential = errors.New("no credential configured")

	// ErrDecodeFailure is returned when the vendor answered but no JSON object
	// could be recovered. It is the only error the orchestrator retries.
	ErrDecodeFailure = errors.New("response could not be decoded")

	// ErrNoActiveProvider is returned by the orchestrator before a provider is selected.
	ErrNoActiveProvider = errors.New("no active provider")

	// ErrUnknownProvider is returned when a provider name has no registered factory.
	ErrUnknownProvider = errors.New("unknown provider")
)

// HTTPError is a non-success status returned by a vendor.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func decodeError(provider, reason string) error {
	return fmt.Errorf("%s: %s: %w", provider, reason, ErrDecodeFailure)
}

func authError(provider string) error {
	return fmt.Errorf("%s: %w", provider, ErrNoCredential)
}
