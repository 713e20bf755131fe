package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"studyhub/profiles/internal/identity"
	"studyhub/profiles/internal/model"
)

type userMetadata struct {
	FullName            string `json:"full_name"`
	HasCompletedProfile bool   `json:"has_completed_profile"`
	AvatarURL           string `json:"avatar_url,omitempty"`
}

type userView struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	UserMetadata     userMetadata `json:"user_metadata"`
	EmailConfirmedAt *time.Time   `json:"email_confirmed_at"`
	CreatedAt        time.Time    `json:"created_at"`
}

func newUserView(account model.Account) userView {
	return userView{
		ID:    account.ID,
		Email: account.Email,
		UserMetadata: userMetadata{
			FullName:            account.Metadata.FullName,
			HasCompletedProfile: account.Metadata.HasCompletedProfile,
			AvatarURL:           account.Metadata.AvatarURL,
		},
		EmailConfirmedAt: account.EmailConfirmedAt,
		CreatedAt:        account.CreatedAt,
	}
}

type sessionView struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         userView `json:"user"`
}

func newSessionView(session identity.Session) sessionView {
	return sessionView{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn,
		ExpiresAt:    session.ExpiresAt.Unix(),
		User:         newUserView(session.Account),
	}
}

type profileView struct {
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
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func newProfileView(p model.Profile) profileView {
	view := profileView{
		ID:                 p.ID,
		Email:              p.Email,
		Name:               p.Name,
		Grade:              p.Grade,
		Location:           p.Location,
		School:             p.School,
		Subjects:           nonNilStrings(p.Subjects),
		LanguagePreference: nonNilStrings(p.LanguagePreference),
		Mentor:             p.Mentor,
		ProfileCompleted:   p.ProfileCompleted,
		LastLogin:          p.LastLogin,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	if p.Role != "" {
		role := string(p.Role)
		view.Role = &role
	}
	return view
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// flexString accepts a JSON string or number. Grades arrive as either.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("expected string or number")
	}
	if i, err := n.Int64(); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(strings.TrimSpace(n.String()))
	return nil
}
