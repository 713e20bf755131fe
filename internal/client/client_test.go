package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"studyhub/profiles/internal/config"
	apihttp "studyhub/profiles/internal/http"
	"studyhub/profiles/internal/identity"
	"studyhub/profiles/internal/operations"
	"studyhub/profiles/internal/testutil"
)

type fakeGoogle struct {
	verifier string
}

func (f *fakeGoogle) AuthCodeURL(state, verifier string) string {
	f.verifier = verifier
	return "https://accounts.example.test/auth?state=" + url.QueryEscape(state)
}

func (f *fakeGoogle) Exchange(_ context.Context, _, verifier string) (identity.ExternalProfile, error) {
	if verifier != f.verifier {
		return identity.ExternalProfile{}, errors.New("verifier mismatch")
	}
	return identity.ExternalProfile{Subject: "g-7", Email: "grace@example.com", EmailVerified: true, Name: "Grace"}, nil
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	store := testutil.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := identity.NewProvider(store, store, identity.NewMemoryTokenStore(), &testutil.Outbox{}, identity.Options{
		JWTSecret: "client-secret",
		JWTIssuer: "client-test",
		PublicURL: "http://api.test",
	}, logger)
	provider.RegisterOAuth("google", &fakeGoogle{})
	server := apihttp.NewServer(config.Config{FrontendURL: "http://app.test"},
		operations.NewAuth(provider, store, logger),
		operations.NewProfiles(store, provider, logger),
		nil, logger)
	api := httptest.NewServer(server.Router())
	t.Cleanup(api.Close)
	return api
}

func TestSignInPersistsSession(t *testing.T) {
	api := newAPI(t)
	sessions := NewFileSessionStore(t.TempDir())
	c := New(api.URL, sessions, api.Client())
	ctx := context.Background()

	if err := c.SignUp(ctx, "Ada", "ada@example.com", "pw12345678"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	_, err := c.SignIn(ctx, "ada@example.com", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if sessions.IsAuthenticated() {
		t.Fatal("failed sign-in must not leave a session")
	}

	session, err := c.SignIn(ctx, "ada@example.com", "pw12345678")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.User.Email != "ada@example.com" || session.User.FullName != "Ada" || session.ExpiresAt == nil {
		t.Fatalf("unexpected session %+v", session)
	}
	if !sessions.IsAuthenticated() {
		t.Fatal("expected saved session")
	}

	completion, err := c.HasCompletedProfile(ctx)
	if err != nil || completion.IsComplete {
		t.Fatalf("expected incomplete, got %+v %v", completion, err)
	}
	if _, err := c.CreateProfile(ctx, map[string]interface{}{
		"name": "Ada", "grade": "10", "location": "London", "school": "Analytical",
		"role": "student", "subjects": []string{"math"}, "language_preference": []string{"en"},
	}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	profile, err := c.UpdateProfile(ctx, map[string]interface{}{"fullName": "Ada King"})
	if err != nil || profile.Name != "Ada King" {
		t.Fatalf("update profile: %+v %v", profile, err)
	}

	refreshed, err := c.Refresh(ctx)
	if err != nil || refreshed.RefreshToken == session.RefreshToken {
		t.Fatalf("refresh: %+v %v", refreshed, err)
	}

	if err := c.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if sessions.IsAuthenticated() {
		t.Fatal("sign out must clear the session")
	}
	if _, err := c.GetProfile(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestGoogleHandshake(t *testing.T) {
	api := newAPI(t)
	sessions := NewFileSessionStore(t.TempDir())
	c := New(api.URL, sessions, api.Client())
	ctx := context.Background()

	authURL, err := c.SignInWithGoogle(ctx)
	if err != nil {
		t.Fatalf("sign in with google: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := noRedirect.Get(api.URL + "/api/auth/callback/google?code=abc&state=" + url.QueryEscape(state))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	resp.Body.Close()
	callback := resp.Header.Get("Location")

	route, err := c.CompleteOAuthCallback(ctx, callback)
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if route != RouteCreateProfile {
		t.Fatalf("expected %s, got %s", RouteCreateProfile, route)
	}
	session, err := sessions.Load()
	if err != nil || session.User.Email != "grace@example.com" || session.User.ID == "" {
		t.Fatalf("unexpected saved session %+v %v", session, err)
	}

	if _, err := c.CompleteOAuthCallback(ctx, callback); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("replayed callback should fail state check, got %v", err)
	}
}

func TestOAuthStateExpiresAfterFiveMinutes(t *testing.T) {
	sessions := NewFileSessionStore(t.TempDir())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	if err := sessions.SetOAuthState("abc"); err != nil {
		t.Fatalf("set state: %v", err)
	}
	now = now.Add(OAuthStateTTL + time.Second)
	if sessions.VerifyOAuthState("abc") {
		t.Fatal("expired state accepted")
	}

	if err := sessions.SetOAuthState("abc"); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if sessions.VerifyOAuthState("other") {
		t.Fatal("mismatched state accepted")
	}
	if sessions.VerifyOAuthState("abc") {
		t.Fatal("state must be removed on first read")
	}
}

func TestIsAuthenticated(t *testing.T) {
	dir := t.TempDir()
	sessions := NewFileSessionStore(dir)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	if sessions.IsAuthenticated() {
		t.Fatal("empty store authenticated")
	}
	if err := sessions.Save(Session{AccessToken: "tok"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !sessions.IsAuthenticated() {
		t.Fatal("token without expiry should count")
	}
	past := now.Add(-time.Minute)
	if err := sessions.Save(Session{AccessToken: "tok", ExpiresAt: &past}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if sessions.IsAuthenticated() {
		t.Fatal("expired session authenticated")
	}

	info, err := os.Stat(filepath.Join(dir, sessionFile))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("session file mode %v", info.Mode().Perm())
	}
}
