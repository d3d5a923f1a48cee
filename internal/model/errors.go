package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an ingestion failure so retry decisions never depend
// on provider-specific error text.
type ErrorKind string

const (
	KindRateLimited         ErrorKind = "RateLimited"
	KindMalformed           ErrorKind = "Malformed"
	KindNotFound            ErrorKind = "NotFound"
	KindTransport           ErrorKind = "Transport"
	KindInvalidObservation  ErrorKind = "InvalidObservation"
	KindPersistenceFailure  ErrorKind = "PersistenceFailure"
	KindPreconditionFailure ErrorKind = "PreconditionFailure"
)

// ErrPreconditionFailure is returned when a run cannot start at all.
var ErrPreconditionFailure = errors.New("precondition failure")

// IngestError carries an ErrorKind alongside the underlying cause.
type IngestError struct {
	Kind   ErrorKind
	Ticker string
	Err    error
}

// NewError builds an IngestError.
func NewError(kind ErrorKind, ticker string, err error) *IngestError {
	return &IngestError{Kind: kind, Ticker: ticker, Err: err}
}

// Errorf builds an IngestError with a formatted cause.
func Errorf(kind ErrorKind, ticker, format string, args ...any) *IngestError {
	return NewError(kind, ticker, fmt.Errorf(format, args...))
}

func (e *IngestError) Error() string {
	if e.Ticker == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Ticker, e.Kind, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// KindOf classifies err. Unclassified errors, including timeouts, are
// treated as Transport failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrPreconditionFailure) {
		return KindPreconditionFailure
	}
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindTransport
}
