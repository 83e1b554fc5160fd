package revalidate

import "errors"

var (
	// ErrNotConfigured means no webhook secret is set. Fatal for every request.
	ErrNotConfigured = errors.New("webhook secret not configured")

	// ErrInvalidSignature means the signature header is missing or wrong.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidPayload means the body is not a usable webhook payload.
	ErrInvalidPayload = errors.New("invalid payload")
)

// PayloadError is returned by ParsePayload. Schema is false when the body is
// not JSON at all and true when it parsed but failed validation.
type PayloadError struct {
	Err    error
	Schema bool
}

func (e *PayloadError) Error() string { return "invalid payload: " + e.Err.Error() }
func (e *PayloadError) Unwrap() error { return e.Err }
func (e *PayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

// ItemError records one path or tag that could not be invalidated.
type ItemError struct {
	Kind   string // "path" or "tag"
	Target string
	Err    error
}

func (e ItemError) Error() string { return e.Kind + " " + e.Target + ": " + e.Err.Error() }
func (e ItemError) Unwrap() error { return e.Err }
