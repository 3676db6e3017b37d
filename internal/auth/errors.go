package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenNotFound means neither the cookie jar nor the page HTML
	// carried an anti-forgery token.
	ErrTokenNotFound = errors.New("anti-forgery token not found")

	// ErrTransport covers network failures and unacceptable status codes.
	ErrTransport = errors.New("transport error")

	// ErrAuthenticationFailed means the sign-in endpoint rejected the credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUserIDMissing means the current-user document had no id to chain
	// into the statistics call.
	ErrUserIDMissing = errors.New("current user id missing from response")
)

// TransportError reports a failed request. StatusCode is 0 when no
// response was received.
type TransportError struct {
	Step       Step
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s: status %d: %v", e.Step, e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: %s: status %d: %s", e.Step, e.URL, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: status %d", e.Step, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Step, e.URL, e.Err)
	}
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// AuthenticationError carries the rejecting status code. Body is diagnostic
// text only and is never parsed.
type AuthenticationError struct {
	StatusCode int
	Body       string
}

func (e *AuthenticationError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: status %d", ErrAuthenticationFailed, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", ErrAuthenticationFailed, e.StatusCode, e.Body)
}

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthenticationFailed }
