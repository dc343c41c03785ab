package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"mediabib-service/internal/policy"
)

var (
	// ErrUnauthenticated and ErrForbidden are the policy errors, re-exported
	// so callers only import this package.
	ErrUnauthenticated = policy.ErrUnauthenticated
	ErrForbidden       = policy.ErrForbidden

	// ErrNotAReader covers both a non-reader actor and a reader whose profile
	// does not exist yet. The two cases are deliberately indistinguishable.
	ErrNotAReader = fmt.Errorf("%w: no reader profile is associated with this account", policy.ErrForbidden)

	// ErrNotFound is returned for absent records and for records outside the
	// actor's library scope alike.
	ErrNotFound = errors.New("not found")

	ErrInvalidCredentials    = errors.New("no active account found with the given credentials")
	ErrInvalidToken          = errors.New("token is invalid or expired")
	ErrCardIssuanceExhausted = errors.New("could not issue a unique card number")
)

// ValidationError carries field-keyed messages. The request it rejects has
// not modified any state.
type ValidationError struct {
	Fields map[string][]string
}

func newValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add appends a message for field
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Empty reports whether no field failed
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns e as an error, or nil when nothing was added
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// merge folds other into e
func (e *ValidationError) merge(other error) error {
	var ve *ValidationError
	if other == nil {
		return nil
	}
	if !errors.As(other, &ve) {
		return other
	}
	for field, msgs := range ve.Fields {
		for _, m := range msgs {
			e.Add(field, m)
		}
	}
	return nil
}
