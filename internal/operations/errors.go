package operations

import (
	"errors"

	"studyhub/profiles/internal/identity"
	"studyhub/profiles/internal/repository"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindUpstream       Kind = "upstream"
)

// Error is what workflows return. Message is safe to show to end users; Err
// carries the underlying failure for logs only.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the workflow kind of err, treating foreign errors as upstream.
func KindOf(err error) Kind {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindUpstream
}

func validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// providerError is the only place identity failures are classified. fallback
// is the message used for anything the provider did not classify itself.
func providerError(err error, fallback string) *Error {
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		return upstream(fallback, err)
	}
	switch idErr.Code {
	case identity.CodeEmailTaken:
		return &Error{Kind: KindValidation, Message: "Email already registered", Err: err}
	case identity.CodeInvalidEmail:
		return &Error{Kind: KindValidation, Message: "A valid email is required", Fields: map[string]string{"email": "invalid"}, Err: err}
	case identity.CodeWeakPassword:
		return &Error{Kind: KindValidation, Message: "Password is too short", Fields: map[string]string{"password": "too_short"}, Err: err}
	case identity.CodeInvalidCredentials:
		return &Error{Kind: KindAuthentication, Message: "Invalid email or password", Err: err}
	case identity.CodeEmailNotConfirmed:
		return &Error{Kind: KindAuthentication, Message: "Email not confirmed", Err: err}
	case identity.CodeInvalidToken:
		return &Error{Kind: KindAuthentication, Message: "Invalid or expired token", Err: err}
	case identity.CodeInvalidState:
		return &Error{Kind: KindValidation, Message: "Sign-in request expired or is invalid", Err: err}
	case identity.CodeUserNotFound:
		return &Error{Kind: KindNotFound, Message: "User not found", Err: err}
	case identity.CodeEmailUnverified:
		return &Error{Kind: KindAuthentication, Message: "Email already registered, sign in with your password", Err: err}
	case identity.CodeProviderDisabled:
		return &Error{Kind: KindValidation, Message: "Sign-in provider is not available", Err: err}
	default:
		return upstream(fallback, err)
	}
}

// storeError classifies repository failures for the profile workflow.
func storeError(err error, fallback string) *Error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "Profile not found", Err: err}
	case errors.Is(err, repository.ErrConflict):
		return &Error{Kind: KindConflict, Message: "Profile already exists", Err: err}
	case errors.Is(err, repository.ErrInvalidReference):
		return &Error{Kind: KindValidation, Message: "Mentor does not exist", Fields: map[string]string{"mentor": "unknown"}, Err: err}
	case errors.Is(err, repository.ErrInvalidValue):
		return &Error{Kind: KindValidation, Message: "Invalid profile value", Err: err}
	default:
		return upstream(fallback, err)
	}
}
