package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCredentialExhausted is returned when a provider has no active credential left.
	ErrCredentialExhausted = errors.New("no active credential available")

	// ErrUnsupportedProvider is returned when an account identifier cannot be resolved to a provider.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrOperationNotFound is returned when an operation id is unknown.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrAccountNotFound is returned when an account id is unknown.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when adding an account whose canonical URL is already stored.
	ErrAccountExists = errors.New("account already exists")
)

// ResourceCreationError reports that every browser launch strategy failed.
type ResourceCreationError struct {
	Attempts []StrategyFailure
}

// StrategyFailure records why one launch strategy failed.
type StrategyFailure struct {
	Strategy string
	Err      error
}

func (e *ResourceCreationError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return "failed to create browser session: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual strategy errors to errors.Is/As.
func (e *ResourceCreationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// FetchError reports a failed content fetch for an account.
type FetchError struct {
	Provider   Provider
	AccountURL string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s account %s: %v", e.Provider, e.AccountURL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PersistenceError reports that the durable store could not be read or written.
// Workers treat it as fatal to the process.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err unless it is nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err is, or wraps, a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
