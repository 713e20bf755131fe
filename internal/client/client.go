package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studyhub/profiles/internal/auth"
)

// Routes the callback handshake can send the user to next.
const (
	RouteCreateProfile = "/createProfile"
	RouteUpdateProfile = "/updateProfile"
)

var ErrStateMismatch = errors.New("oauth state missing, expired or mismatched")

// APIError is a non-2xx envelope from the server.
type APIError struct {
	Status  int
	Message string
	Errors  map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL  string
	http     *http.Client
	sessions *FileSessionStore
}

func New(baseURL string, sessions *FileSessionStore, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, sessions: sessions}
}

type Profile struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	Grade              string     `json:"grade"`
	Location           string     `json:"location"`
	School             string     `json:"school"`
	Role               *string    `json:"role"`
	Subjects           []string   `json:"subjects"`
	LanguagePreference []string   `json:"language_preference"`
	Mentor             *string    `json:"mentor"`
	ProfileCompleted   bool       `json:"profile_completed"`
	LastLogin          *time.Time `json:"last_login"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type Completion struct {
	IsComplete    bool     `json:"isComplete"`
	MissingFields []string `json:"missingFields"`
	Message       string   `json:"message"`
}

type serverUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		FullName            string `json:"full_name"`
		HasCompletedProfile bool   `json:"has_completed_profile"`
	} `json:"user_metadata"`
}

type serverSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    int64      `json:"expires_at"`
	User         serverUser `json:"user"`
}

func (s serverSession) blob() Session {
	session := Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		User: SessionUser{
			ID:                s.User.ID,
			Email:             s.User.Email,
			FullName:          s.User.UserMetadata.FullName,
			IsProfileComplete: s.User.UserMetadata.HasCompletedProfile,
		},
	}
	if s.ExpiresAt > 0 {
		expires := time.Unix(s.ExpiresAt, 0).UTC()
		session.ExpiresAt = &expires
	}
	return session
}

func (c *Client) SignUp(ctx context.Context, name, email, password string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/signup", false, map[string]string{
		"name": name, "email": email, "password": password,
	}, nil)
}

// SignIn stores the returned session.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var out struct {
		Session serverSession `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signin", false, map[string]string{
		"email": email, "password": password,
	}, &out); err != nil {
		return Session{}, err
	}
	session := out.Session.blob()
	if err := c.sessions.Save(session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// SignOut revokes the server session and clears local state even when the
// server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/api/auth/signout", true, nil, nil)
	if clearErr := c.sessions.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

// SignInWithGoogle starts the handshake: it returns the provider URL to open
// and remembers the state the callback must echo.
func (c *Client) SignInWithGoogle(ctx context.Context) (string, error) {
	var out struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/signin/google", false, nil, &out); err != nil {
		return "", err
	}
	if err := c.sessions.SetOAuthState(out.State); err != nil {
		return "", err
	}
	return out.URL, nil
}

// CompleteOAuthCallback finishes the handshake from the frontend callback URL
// and decides where the user goes next.
func (c *Client) CompleteOAuthCallback(ctx context.Context, callbackURL string) (string, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return "", fmt.Errorf("parse callback url: %w", err)
	}
	if code := parsed.Query().Get("error"); code != "" {
		return "", &APIError{Status: http.StatusUnauthorized, Message: code}
	}
	fragment, err := url.ParseQuery(parsed.Fragment)
	if err != nil {
		return "", fmt.Errorf("parse callback fragment: %w", err)
	}
	if !c.sessions.VerifyOAuthState(fragment.Get("state")) {
		return "", ErrStateMismatch
	}
	accessToken := fragment.Get("access_token")
	if accessToken == "" {
		return "", errors.New("callback carried no access token")
	}

	session := Session{AccessToken: accessToken, RefreshToken: fragment.Get("refresh_token")}
	if raw := fragment.Get("expires_at"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", fmt.Errorf("parse expires_at: %w", err)
		}
		expires := time.Unix(seconds, 0).UTC()
		session.ExpiresAt = &expires
	}
	claims := &auth.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		session.User.ID = claims.Subject
		session.User.Email = claims.Email
	}
	if err := c.sessions.Save(session); err != nil {
		return "", err
	}

	completion, err := c.HasCompletedProfile(ctx)
	if err != nil {
		return "", err
	}
	if !completion.IsComplete {
		return RouteCreateProfile, nil
	}
	session.User.IsProfileComplete = true
	if err := c.sessions.Save(session); err != nil {
		return "", err
	}
	return RouteUpdateProfile, nil
}

// Refresh swaps the saved refresh token for a new session.
func (c *Client) Refresh(ctx context.Context) (Session, error) {
	current, err := c.sessions.Load()
	if err != nil {
		return Session{}, err
	}
	var out struct {
		Session serverSession `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", false, map[string]string{
		"refreshToken": current.RefreshToken,
	}, &out); err != nil {
		return Session{}, err
	}
	session := out.Session.blob()
	if err := c.sessions.Save(session); err != nil {
		return Session{}, err
	}
	return session, nil
}

func (c *Client) ResetPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/reset-password", false, map[string]string{"email": email}, nil)
}

func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/update-password", true, map[string]string{"newPassword": newPassword}, nil)
}

func (c *Client) HasCompletedProfile(ctx context.Context) (Completion, error) {
	var out struct {
		HasCompleted Completion `json:"hasCompleted"`
	}
	err := c.do(ctx, http.MethodGet, "/api/profile/hasCompletedProfile", true, nil, &out)
	return out.HasCompleted, err
}

func (c *Client) GetProfile(ctx context.Context) (Profile, error) {
	var out struct {
		Profile Profile `json:"profile"`
	}
	err := c.do(ctx, http.MethodGet, "/api/profile/getProfile", true, nil, &out)
	return out.Profile, err
}

// CreateProfile sends fields as given; keys follow the API's snake_case.
func (c *Client) CreateProfile(ctx context.Context, fields map[string]interface{}) (Profile, error) {
	var out struct {
		Profile Profile `json:"profile"`
	}
	err := c.do(ctx, http.MethodPost, "/api/profile/createProfile", true, fields, &out)
	return out.Profile, err
}

func (c *Client) UpdateProfile(ctx context.Context, fields map[string]interface{}) (Profile, error) {
	var out struct {
		Profile Profile `json:"profile"`
	}
	err := c.do(ctx, http.MethodPut, "/api/profile/updateProfile", true, fields, &out)
	return out.Profile, err
}

func (c *Client) do(ctx context.Context, method, path string, authenticated bool, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		token := c.sessions.AccessToken()
		if token == "" {
			return ErrNoSession
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Data    json.RawMessage   `json:"data"`
		Errors  map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !envelope.Success {
		return &APIError{Status: resp.StatusCode, Message: envelope.Message, Errors: envelope.Errors}
	}
	if out != nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}
