package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"studyhub/profiles/internal/auth"
	"studyhub/profiles/internal/crypto"
	"studyhub/profiles/internal/mail"
	"studyhub/profiles/internal/model"
	"studyhub/profiles/internal/repository"
)

type AccountStore interface {
	CreateAccount(ctx context.Context, account model.Account) error
	GetAccountByEmail(ctx context.Context, email string) (model.Account, error)
	GetAccountByID(ctx context.Context, accountID string) (model.Account, error)
	GetAccountByIdentity(ctx context.Context, provider, subject string) (model.Account, error)
	LinkIdentity(ctx context.Context, identity model.Identity) error
	UpdateAccountPassword(ctx context.Context, accountID, passwordHash string, updatedAt time.Time) error
	UpdateAccountMetadata(ctx context.Context, accountID string, metadata model.AccountMetadata, updatedAt time.Time) error
	ConfirmAccountEmail(ctx context.Context, accountID string, confirmedAt time.Time) error
}

type SessionStore interface {
	CreateRefreshSession(ctx context.Context, session model.RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	GetRefreshSessionByID(ctx context.Context, sessionID string) (model.RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error
	RevokeRefreshSessionsByAccount(ctx context.Context, accountID string, revokedAt time.Time) error
}

type Options struct {
	JWTSecret                string
	JWTIssuer                string
	PublicURL                string
	AccessTokenTTL           time.Duration
	RefreshTokenTTL          time.Duration
	StateTTL                 time.Duration
	VerificationTTL          time.Duration
	RecoveryTTL              time.Duration
	RequireEmailConfirmation bool
	MinPasswordLength        int
}

// Provider is the identity collaborator: accounts, credentials, sessions and
// external sign-in.
type Provider struct {
	accounts  AccountStore
	sessions  SessionStore
	tokens    TokenStore
	mailer    mail.Mailer
	opts      Options
	logger    *slog.Logger
	providers map[string]OAuthProvider
	now       func() time.Time
}

func NewProvider(accounts AccountStore, sessions SessionStore, tokens TokenStore, mailer mail.Mailer, opts Options, logger *slog.Logger) *Provider {
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = time.Hour
	}
	if opts.RefreshTokenTTL <= 0 {
		opts.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = 5 * time.Minute
	}
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = 24 * time.Hour
	}
	if opts.RecoveryTTL <= 0 {
		opts.RecoveryTTL = time.Hour
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		accounts:  accounts,
		sessions:  sessions,
		tokens:    tokens,
		mailer:    mailer,
		opts:      opts,
		logger:    logger,
		providers: map[string]OAuthProvider{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterOAuth enables sign-in through an external provider under name.
func (p *Provider) RegisterOAuth(name string, provider OAuthProvider) {
	p.providers[name] = provider
}

// SetClock replaces the time source used for session and token expiry.
func (p *Provider) SetClock(now func() time.Time) {
	p.now = now
}

type ClientInfo struct {
	UserAgent string
	IP        string
}

type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	ExpiresAt    time.Time
	Account      model.Account
}

type SignUpInput struct {
	Name     string
	Email    string
	Password string
}

func (p *Provider) SignUp(ctx context.Context, in SignUpInput) (model.Account, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return model.Account{}, err
	}
	if len(in.Password) < p.opts.MinPasswordLength {
		return model.Account{}, ErrWeakPassword
	}

	if _, err := p.accounts.GetAccountByEmail(ctx, email); err == nil {
		return model.Account{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, err
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return model.Account{}, err
	}
	now := p.now()
	account := model.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Metadata: model.AccountMetadata{
			FullName:            strings.TrimSpace(in.Name),
			HasCompletedProfile: false,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Account{}, ErrEmailTaken
		}
		return model.Account{}, err
	}

	if err := p.sendLink(ctx, KindSignup, account, p.opts.VerificationTTL, "Confirm your email",
		"Confirm your StudyHub account by opening this link:\n\n%s\n"); err != nil {
		p.logger.WarnContext(ctx, "verification email failed", slog.String("account_id", account.ID), slog.Any("error", err))
	}
	return account, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string, client ClientInfo) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	account, err := p.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if account.PasswordHash == "" {
		return Session{}, ErrInvalidCredentials
	}
	if err := crypto.CheckPassword(account.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if p.opts.RequireEmailConfirmation && account.EmailConfirmedAt == nil {
		return Session{}, ErrEmailNotConfirmed
	}
	return p.issueSession(ctx, account, client)
}

type Authorization struct {
	URL       string
	State     string
	ExpiresAt time.Time
}

// AuthorizeURL starts an external sign-in. The returned state is stored
// server side and must come back on the callback within StateTTL.
func (p *Provider) AuthorizeURL(ctx context.Context, providerName string) (Authorization, error) {
	provider, ok := p.providers[providerName]
	if !ok {
		return Authorization{}, ErrProviderDisabled
	}
	state, err := crypto.NewOpaqueToken()
	if err != nil {
		return Authorization{}, err
	}
	verifier := oauth2.GenerateVerifier()
	expiresAt := p.now().Add(p.opts.StateTTL)
	record := TokenRecord{Provider: providerName, CodeVerifier: verifier, ExpiresAt: expiresAt}
	if err := p.tokens.Put(ctx, KindOAuthState, state, record, p.opts.StateTTL); err != nil {
		return Authorization{}, err
	}
	return Authorization{
		URL:       provider.AuthCodeURL(state, verifier),
		State:     state,
		ExpiresAt: expiresAt,
	}, nil
}

// ExchangeCode completes an external sign-in, linking or creating the account.
func (p *Provider) ExchangeCode(ctx context.Context, providerName, state, code string, client ClientInfo) (Session, error) {
	provider, ok := p.providers[providerName]
	if !ok {
		return Session{}, ErrProviderDisabled
	}
	if state == "" || code == "" {
		return Session{}, ErrInvalidState
	}
	record, ok, err := p.tokens.Consume(ctx, KindOAuthState, state)
	if err != nil {
		return Session{}, err
	}
	if !ok || record.Provider != providerName {
		return Session{}, ErrInvalidState
	}

	external, err := provider.Exchange(ctx, code, record.CodeVerifier)
	if err != nil {
		return Session{}, err
	}
	account, err := p.accountForExternal(ctx, providerName, external)
	if err != nil {
		return Session{}, err
	}
	return p.issueSession(ctx, account, client)
}

func (p *Provider) accountForExternal(ctx context.Context, providerName string, external ExternalProfile) (model.Account, error) {
	account, err := p.accounts.GetAccountByIdentity(ctx, providerName, external.Subject)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, err
	}

	now := p.now()
	account, err = p.accounts.GetAccountByEmail(ctx, external.Email)
	switch {
	case err == nil:
		// An unverified provider email proves nothing about who owns the
		// existing account.
		if !external.EmailVerified {
			return model.Account{}, ErrEmailUnverified
		}
		if account.EmailConfirmedAt == nil {
			if err := p.accounts.ConfirmAccountEmail(ctx, account.ID, now); err != nil {
				return model.Account{}, err
			}
			account.EmailConfirmedAt = &now
		}
	case errors.Is(err, repository.ErrNotFound):
		account = model.Account{
			ID:    uuid.NewString(),
			Email: external.Email,
			Metadata: model.AccountMetadata{
				FullName:  external.Name,
				AvatarURL: external.Picture,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if external.EmailVerified {
			account.EmailConfirmedAt = &now
		}
		if err := p.accounts.CreateAccount(ctx, account); err != nil {
			return model.Account{}, err
		}
	default:
		return model.Account{}, err
	}

	if err := p.accounts.LinkIdentity(ctx, model.Identity{
		Provider:  providerName,
		Subject:   external.Subject,
		AccountID: account.ID,
		CreatedAt: now,
	}); err != nil {
		return model.Account{}, err
	}
	return account, nil
}

// GetUser resolves an access token to its account. The session behind the
// token must still be active.
func (p *Provider) GetUser(ctx context.Context, accessToken string) (model.Account, error) {
	claims, err := p.parse(accessToken)
	if err != nil {
		return model.Account{}, err
	}
	session, err := p.sessions.GetRefreshSessionByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Account{}, ErrInvalidToken
		}
		return model.Account{}, err
	}
	if !session.Active(p.now()) || session.AccountID != claims.Subject {
		return model.Account{}, ErrInvalidToken
	}
	account, err := p.accounts.GetAccountByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Account{}, ErrInvalidToken
		}
		return model.Account{}, err
	}
	return account, nil
}

func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := p.parse(accessToken)
	if err != nil {
		return err
	}
	return p.sessions.RevokeRefreshSession(ctx, claims.SessionID, p.now())
}

// Refresh rotates a refresh token: the old session is revoked and a new one
// issued.
func (p *Provider) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (Session, error) {
	if refreshToken == "" {
		return Session{}, ErrInvalidToken
	}
	session, err := p.sessions.GetRefreshSession(ctx, crypto.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	now := p.now()
	if !session.Active(now) {
		return Session{}, ErrInvalidToken
	}
	if err := p.sessions.RevokeRefreshSession(ctx, session.ID, now); err != nil {
		return Session{}, err
	}
	account, err := p.accounts.GetAccountByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	return p.issueSession(ctx, account, client)
}

// ResetPasswordForEmail mails a recovery link. Unknown addresses return
// ErrUserNotFound; hiding that from end users is the caller's concern.
func (p *Provider) ResetPasswordForEmail(ctx context.Context, email string) error {
	account, err := p.accounts.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return p.sendLink(ctx, KindRecovery, account, p.opts.RecoveryTTL, "Reset your password",
		"Open this link to choose a new StudyHub password:\n\n%s\n\nIf you did not ask for this, ignore this email.\n")
}

type Verification struct {
	Kind    TokenKind
	Account model.Account
	// Session is set for recovery links so the user can choose a new password.
	Session *Session
}

func (p *Provider) Verify(ctx context.Context, kind TokenKind, token string, client ClientInfo) (Verification, error) {
	if kind != KindSignup && kind != KindRecovery {
		return Verification{}, ErrInvalidToken
	}
	record, ok, err := p.tokens.Consume(ctx, kind, token)
	if err != nil {
		return Verification{}, err
	}
	if !ok {
		return Verification{}, ErrInvalidToken
	}
	account, err := p.accounts.GetAccountByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Verification{}, ErrInvalidToken
		}
		return Verification{}, err
	}

	now := p.now()
	if account.EmailConfirmedAt == nil {
		if err := p.accounts.ConfirmAccountEmail(ctx, account.ID, now); err != nil {
			return Verification{}, err
		}
		account.EmailConfirmedAt = &now
	}

	result := Verification{Kind: kind, Account: account}
	if kind == KindRecovery {
		session, err := p.issueSession(ctx, account, client)
		if err != nil {
			return Verification{}, err
		}
		result.Session = &session
	}
	return result, nil
}

type UserUpdate struct {
	Password            *string
	FullName            *string
	HasCompletedProfile *bool
}

// UpdateUserByID is the administrative update path. It performs no ownership
// check of its own. A password change signs the account out everywhere.
func (p *Provider) UpdateUserByID(ctx context.Context, accountID string, update UserUpdate) (model.Account, error) {
	account, err := p.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Account{}, ErrUserNotFound
		}
		return model.Account{}, err
	}
	now := p.now()

	if update.Password != nil {
		if len(*update.Password) < p.opts.MinPasswordLength {
			return model.Account{}, ErrWeakPassword
		}
		hash, err := crypto.HashPassword(*update.Password)
		if err != nil {
			return model.Account{}, err
		}
		if err := p.accounts.UpdateAccountPassword(ctx, accountID, hash, now); err != nil {
			return model.Account{}, err
		}
		account.PasswordHash = hash
		// Every session issued under the old password ends here, the caller's
		// included.
		if err := p.sessions.RevokeRefreshSessionsByAccount(ctx, accountID, now); err != nil {
			return model.Account{}, err
		}
	}

	if update.FullName != nil || update.HasCompletedProfile != nil {
		metadata := account.Metadata
		if update.FullName != nil {
			metadata.FullName = strings.TrimSpace(*update.FullName)
		}
		if update.HasCompletedProfile != nil {
			metadata.HasCompletedProfile = *update.HasCompletedProfile
		}
		if err := p.accounts.UpdateAccountMetadata(ctx, accountID, metadata, now); err != nil {
			return model.Account{}, err
		}
		account.Metadata = metadata
	}
	account.UpdatedAt = now
	return account, nil
}

func (p *Provider) issueSession(ctx context.Context, account model.Account, client ClientInfo) (Session, error) {
	refreshToken, err := crypto.NewRefreshToken()
	if err != nil {
		return Session{}, err
	}
	now := p.now()
	session := model.RefreshSession{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(p.opts.RefreshTokenTTL),
		UserAgent: optional(client.UserAgent),
		IPAddress: optional(client.IP),
	}
	if err := p.sessions.CreateRefreshSession(ctx, session); err != nil {
		return Session{}, err
	}

	accessToken, expiresAt, err := auth.NewAccessToken(p.opts.JWTSecret, p.opts.JWTIssuer, p.opts.AccessTokenTTL, account.ID, auth.Claims{
		Email:     account.Email,
		SessionID: session.ID,
	})
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(p.opts.AccessTokenTTL.Seconds()),
		ExpiresAt:    expiresAt,
		Account:      account,
	}, nil
}

func (p *Provider) parse(accessToken string) (*auth.Claims, error) {
	if accessToken == "" {
		return nil, ErrInvalidToken
	}
	claims, err := auth.ParseToken(p.opts.JWTSecret, p.opts.JWTIssuer, accessToken)
	if err != nil {
		return nil, wrap(ErrInvalidToken, err)
	}
	if claims.SessionID == "" || claims.Role != auth.AuthenticatedRole {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (p *Provider) sendLink(ctx context.Context, kind TokenKind, account model.Account, ttl time.Duration, subject, body string) error {
	token, err := crypto.NewOpaqueToken()
	if err != nil {
		return err
	}
	record := TokenRecord{AccountID: account.ID, ExpiresAt: p.now().Add(ttl)}
	if err := p.tokens.Put(ctx, kind, token, record, ttl); err != nil {
		return err
	}
	query := url.Values{}
	query.Set("type", string(kind))
	query.Set("token", token)
	link := p.opts.PublicURL + "/api/auth/verify?" + query.Encode()
	return p.mailer.Send(ctx, mail.Message{
		To:      account.Email,
		Subject: subject,
		Body:    fmt.Sprintf(body, link),
	})
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
