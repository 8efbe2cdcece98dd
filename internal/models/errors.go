package models

import "errors"

// ErrEmptyGeneration marks a generative service response that carried no
// usable text. The flow engine treats it exactly like a transport failure.
var ErrEmptyGeneration = errors.New("generative service returned empty text")

// TransientError wraps a transport failure that is worth retrying, such as a
// network error or a rate-limit response.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient transport failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a transient transport failure. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is (or wraps) a transient transport failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
