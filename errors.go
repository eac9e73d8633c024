package login

import (
	"errors"
	"fmt"

	"github.com/meridianctl/login/identity"
	"github.com/meridianctl/login/listener"
)

// Error codes as constants
const (
	CodeAuthorizationTimeout = "authorization_timeout"
	CodePortConflict         = "port_conflict"
	CodeAuthorizationDenied  = "authorization_denied"
	CodeTokenExchangeFailed  = "token_exchange_failed"
	CodeMFARequired          = "mfa_required"
	CodeSubscriptionNotFound = "subscription_not_found"
	CodeNoAccount            = "no_account"
)

// Error is the public failure type. Code identifies the outcome for
// programmatic handling, Component names the stage that failed, and
// Description is safe to show to a user. Descriptions are built from
// classified codes, never from raw provider bodies, which may echo tokens.
type Error struct {
	Code        string // stable machine-readable code
	Component   string // stage that produced the failure
	Description string // human-readable description
	cause       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s: %s", e.Component, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Code, e.Description)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new typed error.
func NewError(code, component, description string, cause error) *Error {
	return &Error{
		Code:        code,
		Component:   component,
		Description: description,
		cause:       cause,
	}
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code string) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Code == code
}

// classify maps the sentinel errors of the listener and identity packages
// onto the public taxonomy. Errors that are already typed pass through;
// anything unrecognized keeps its own text under a generic code.
func classify(component string, err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	switch {
	case errors.Is(err, listener.ErrPortConflict):
		return NewError(CodePortConflict, component,
			"the redirect port is already in use", err)
	case errors.Is(err, listener.ErrAuthorizationDenied):
		return NewError(CodeAuthorizationDenied, component,
			"the authorization request was denied", err)
	case errors.Is(err, listener.ErrAuthorizationTimeout):
		return NewError(CodeAuthorizationTimeout, component,
			"timed out waiting for the browser sign-in to complete", err)
	case errors.Is(err, identity.ErrMFARequired):
		return NewError(CodeMFARequired, component,
			"the identity provider requires multi-factor interaction", err)
	case errors.Is(err, identity.ErrSilentUnavailable),
		errors.Is(err, identity.ErrExchangeFailed):
		return NewError(CodeTokenExchangeFailed, component,
			"token acquisition failed", err)
	default:
		return NewError(CodeTokenExchangeFailed, component, err.Error(), err)
	}
}
