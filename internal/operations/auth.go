package operations

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"studyhub/profiles/internal/identity"
	"studyhub/profiles/internal/model"
	"studyhub/profiles/internal/repository"
)

// IdentityProvider is the identity collaborator as seen by the workflows.
type IdentityProvider interface {
	SignUp(ctx context.Context, in identity.SignUpInput) (model.Account, error)
	SignInWithPassword(ctx context.Context, email, password string, client identity.ClientInfo) (identity.Session, error)
	AuthorizeURL(ctx context.Context, provider string) (identity.Authorization, error)
	ExchangeCode(ctx context.Context, provider, state, code string, client identity.ClientInfo) (identity.Session, error)
	GetUser(ctx context.Context, accessToken string) (model.Account, error)
	SignOut(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string, client identity.ClientInfo) (identity.Session, error)
	ResetPasswordForEmail(ctx context.Context, email string) error
	Verify(ctx context.Context, kind identity.TokenKind, token string, client identity.ClientInfo) (identity.Verification, error)
	UpdateUserByID(ctx context.Context, accountID string, update identity.UserUpdate) (model.Account, error)
}

// LoginRecorder stamps last_login on the end-user path.
type LoginRecorder interface {
	TouchLastLogin(ctx context.Context, profileID string, at time.Time) error
}

type Auth struct {
	provider IdentityProvider
	logins   LoginRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuth(provider IdentityProvider, logins LoginRecorder, logger *slog.Logger) *Auth {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auth{
		provider: provider,
		logins:   logins,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type SignUpInput struct {
	Name     string
	Email    string
	Password string
}

func (a *Auth) SignUp(ctx context.Context, in SignUpInput) (model.Account, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "required"
	}
	if strings.TrimSpace(in.Email) == "" {
		fields["email"] = "required"
	}
	if in.Password == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		return model.Account{}, validation("Name, email and password are required", fields)
	}

	account, err := a.provider.SignUp(ctx, identity.SignUpInput{Name: in.Name, Email: in.Email, Password: in.Password})
	if err != nil {
		return model.Account{}, a.fail(ctx, "sign_up", "", providerError(err, "Failed to create account"))
	}
	return account, nil
}

func (a *Auth) SignIn(ctx context.Context, email, password string, client identity.ClientInfo) (identity.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return identity.Session{}, validation("Email and password are required", nil)
	}
	session, err := a.provider.SignInWithPassword(ctx, email, password, client)
	if err != nil {
		return identity.Session{}, a.fail(ctx, "sign_in", "", providerError(err, "Failed to sign in"))
	}
	a.recordLogin(ctx, session.Account.ID)
	return session, nil
}

func (a *Auth) SignInWithGoogle(ctx context.Context) (identity.Authorization, error) {
	authz, err := a.provider.AuthorizeURL(ctx, "google")
	if err != nil {
		return identity.Authorization{}, a.fail(ctx, "sign_in_google", "", providerError(err, "Failed to initialize Google sign-in"))
	}
	return authz, nil
}

// CompleteOAuth is the server side of the provider redirect.
func (a *Auth) CompleteOAuth(ctx context.Context, provider, state, code string, client identity.ClientInfo) (identity.Session, error) {
	session, err := a.provider.ExchangeCode(ctx, provider, state, code, client)
	if err != nil {
		return identity.Session{}, a.fail(ctx, "oauth_callback", "", providerError(err, "Failed to complete sign-in"))
	}
	a.recordLogin(ctx, session.Account.ID)
	return session, nil
}

// Authenticate resolves a bearer token to its account.
func (a *Auth) Authenticate(ctx context.Context, accessToken string) (model.Account, error) {
	account, err := a.provider.GetUser(ctx, accessToken)
	if err != nil {
		return model.Account{}, a.fail(ctx, "authenticate", "", providerError(err, "Authentication failed"))
	}
	return account, nil
}

func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	if err := a.provider.SignOut(ctx, accessToken); err != nil {
		return a.fail(ctx, "sign_out", "", providerError(err, "Failed to sign out"))
	}
	return nil
}

func (a *Auth) Refresh(ctx context.Context, refreshToken string, client identity.ClientInfo) (identity.Session, error) {
	if refreshToken == "" {
		return identity.Session{}, validation("Refresh token is required", map[string]string{"refreshToken": "required"})
	}
	session, err := a.provider.Refresh(ctx, refreshToken, client)
	if err != nil {
		return identity.Session{}, a.fail(ctx, "refresh", "", providerError(err, "Failed to refresh session"))
	}
	return session, nil
}

// ResetPassword never tells the caller whether the address has an account.
// Only a missing email is reported back.
func (a *Auth) ResetPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return validation("Email is required", map[string]string{"email": "required"})
	}
	if err := a.provider.ResetPasswordForEmail(ctx, email); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			a.logger.InfoContext(ctx, "password reset for unknown email")
		} else {
			a.logger.ErrorContext(ctx, "password reset failed", slog.Any("error", err))
		}
	}
	return nil
}

func (a *Auth) Verify(ctx context.Context, kind, token string, client identity.ClientInfo) (identity.Verification, error) {
	if token == "" {
		return identity.Verification{}, validation("Verification token is required", map[string]string{"token": "required"})
	}
	verification, err := a.provider.Verify(ctx, identity.TokenKind(kind), token, client)
	if err != nil {
		return identity.Verification{}, a.fail(ctx, "verify", "", providerError(err, "Failed to verify link"))
	}
	return verification, nil
}

// UpdatePassword sets a new password through the administrative path. The
// caller may only change their own password.
func (a *Auth) UpdatePassword(ctx context.Context, caller model.Account, targetID, newPassword string) error {
	if caller.ID == "" || caller.ID != targetID {
		return &Error{Kind: KindAuthorization, Message: "You can only change your own password"}
	}
	if newPassword == "" {
		return validation("New password is required", map[string]string{"newPassword": "required"})
	}
	if _, err := a.provider.UpdateUserByID(ctx, targetID, identity.UserUpdate{Password: &newPassword}); err != nil {
		return a.fail(ctx, "update_password", targetID, providerError(err, "Failed to update password"))
	}
	return nil
}

func (a *Auth) recordLogin(ctx context.Context, accountID string) {
	if a.logins == nil || accountID == "" {
		return
	}
	err := a.logins.TouchLastLogin(ctx, accountID, a.now())
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		a.logger.WarnContext(ctx, "last login update failed", slog.String("user_id", accountID), slog.Any("error", err))
	}
}

func (a *Auth) fail(ctx context.Context, op, userID string, err *Error) error {
	if err.Kind == KindUpstream {
		a.logger.ErrorContext(ctx, "auth workflow failed",
			slog.String("op", op),
			slog.String("user_id", userID),
			slog.Any("error", err.Err),
		)
	}
	return err
}
