package identity

import "fmt"

// Error is a structured identity failure. Callers branch on Code, never on
// Message.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

const (
	CodeEmailTaken         = "email_taken"
	CodeInvalidEmail       = "invalid_email"
	CodeWeakPassword       = "weak_password"
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeInvalidToken       = "invalid_token"
	CodeInvalidState       = "invalid_state"
	CodeUserNotFound       = "user_not_found"
	CodeProviderDisabled   = "provider_disabled"
	CodeEmailUnverified    = "email_unverified"
)

var (
	ErrEmailTaken         = &Error{Code: CodeEmailTaken, Message: "email already registered"}
	ErrInvalidEmail       = &Error{Code: CodeInvalidEmail, Message: "email address is invalid"}
	ErrWeakPassword       = &Error{Code: CodeWeakPassword, Message: "password is too short"}
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Message: "invalid login credentials"}
	ErrEmailNotConfirmed  = &Error{Code: CodeEmailNotConfirmed, Message: "email not confirmed"}
	ErrInvalidToken       = &Error{Code: CodeInvalidToken, Message: "token is invalid or expired"}
	ErrInvalidState       = &Error{Code: CodeInvalidState, Message: "oauth state is invalid or expired"}
	ErrUserNotFound       = &Error{Code: CodeUserNotFound, Message: "user not found"}
	ErrProviderDisabled   = &Error{Code: CodeProviderDisabled, Message: "oauth provider is not configured"}
	ErrEmailUnverified    = &Error{Code: CodeEmailUnverified, Message: "provider email is unverified and already registered"}
)

func wrap(sentinel *Error, err error) error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Err: err}
}
