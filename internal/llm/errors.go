package llm

import "errors"

// TransientError marks gateway failures that are worth retrying: network
// errors, timeouts, throttling and provider 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient llm error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// AuthError marks rejected credentials. Never retried.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "llm authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// ParseError marks responses whose shape could not be decoded. Never
// retried; callers handle it with a conservative fallback.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "invalid llm response: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// IsTransient reports whether the error is retryable per the policy above.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsAuth reports whether the error is an authentication failure.
func IsAuth(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth)
}

// IsParse reports whether the error is a response-shape failure.
func IsParse(err error) bool {
	var parse *ParseError
	return errors.As(err, &parse)
}
