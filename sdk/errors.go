package revlive

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrChannelClosed is returned by Send when no connection is open.
var ErrChannelClosed = errors.New("live channel is closed")

// TransportError represents a failure to reach the relay (DNS, refused
// connection, TLS, a rejected upgrade).
//
// Use errors.As(err, &TransportError{}) to tell it apart from protocol errors.
type TransportError struct {
	Op     string
	URL    string
	Status int // HTTP status of a rejected upgrade, 0 otherwise
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Status != 0:
		return fmt.Sprintf("transport error during %s %s (status %d): %v", e.Op, redactURLUserInfo(e.URL), e.Status, e.Err)
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
