package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Class buckets a source failure into the retry policy that applies to it.
type Class string

const (
	// ClassNetwork covers timeouts, resets, and DNS failures. Exponential backoff.
	ClassNetwork Class = "network"
	// ClassRateLimit covers 429-style throttling. Linear backoff, longer base.
	ClassRateLimit Class = "rate_limit"
	// ClassValidation covers malformed source responses worth one immediate re-probe.
	ClassValidation Class = "validation"
	// ClassPermanent covers not-found and parse failures. Never retried.
	ClassPermanent Class = "permanent"
)

// Failure is an error from a source call carrying its retry class.
// Source adapters wrap their errors in Failure so the controller never has
// to string-match exception messages.
type Failure struct {
	Err        error
	Class      Class
	StatusCode int
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure wraps err with an explicit retry class.
func NewFailure(err error, class Class) *Failure {
	return &Failure{Err: err, Class: class}
}

// NewHTTPFailure classifies err by HTTP status code.
func NewHTTPFailure(err error, statusCode int) *Failure {
	class := ClassPermanent
	switch {
	case statusCode == 429:
		class = ClassRateLimit
	case statusCode == 408 || statusCode >= 500:
		class = ClassNetwork
	}
	return &Failure{Err: err, Class: class, StatusCode: statusCode}
}

// Classify returns the retry class for err. Explicitly-wrapped failures win;
// otherwise network-level transient errors map to ClassNetwork and anything
// else is permanent.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}

	var f *Failure
	if errors.As(err, &f) {
		return f.Class
	}

	if isTransportError(err) {
		return ClassNetwork
	}
	return ClassPermanent
}

// Retryable reports whether the class allows at least one retry.
func (c Class) Retryable() bool {
	return c != ClassPermanent
}

// isTransportError matches network-level errors that were not wrapped by an
// adapter: timeouts, connection resets, DNS failures.
func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
