package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// ExternalProfile is the subset of provider userinfo used to link accounts.
type ExternalProfile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// OAuthProvider is one external sign-in provider.
type OAuthProvider interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (ExternalProfile, error)
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
	// Endpoint and UserInfoURL default to Google's production endpoints.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

type Google struct {
	oauth       *oauth2.Config
	client      *http.Client
	userInfoURL string
}

func NewGoogle(cfg GoogleConfig) *Google {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = endpoints.Google
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		client:      &http.Client{Timeout: timeout},
		userInfoURL: userInfoURL,
	}
}

func (g *Google) AuthCodeURL(state, verifier string) string {
	return g.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier),
	)
}

type googleUserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (g *Google) Exchange(ctx context.Context, code, verifier string) (ExternalProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	token, err := g.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return ExternalProfile{}, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return ExternalProfile{}, err
	}
	resp, err := g.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return ExternalProfile{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ExternalProfile{}, fmt.Errorf("fetch userinfo: status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ExternalProfile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Subject == "" || info.Email == "" {
		return ExternalProfile{}, fmt.Errorf("userinfo missing subject or email")
	}
	return ExternalProfile{
		Subject:       info.Subject,
		Email:         strings.ToLower(strings.TrimSpace(info.Email)),
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		Picture:       info.Picture,
	}, nil
}
