package model

import (
	"strings"
	"time"
)

type Account struct {
	ID               string
	Email            string
	PasswordHash     string
	Metadata         AccountMetadata
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccountMetadata is stored as jsonb on the account row.
type AccountMetadata struct {
	FullName            string `json:"full_name"`
	HasCompletedProfile bool   `json:"has_completed_profile"`
	AvatarURL           string `json:"avatar_url,omitempty"`
}

type Identity struct {
	Provider  string
	Subject   string
	AccountID string
	CreatedAt time.Time
}

type RefreshSession struct {
	ID        string
	AccountID string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent *string
	IPAddress *string
}

func (s RefreshSession) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
)

// ParseRole normalizes value and reports whether it names a known role.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.TrimSpace(strings.ToLower(value)))
	switch role {
	case RoleStudent, RoleTeacher, RoleMentor, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

type Profile struct {
	ID                 string
	Email              string
	Name               string
	Grade              string
	Location           string
	School             string
	Role               Role
	Subjects           []string
	LanguagePreference []string
	Mentor             *string
	ProfileCompleted   bool
	LastLogin          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProfileUpdate carries only the fields a caller wants changed.
type ProfileUpdate struct {
	Name               *string
	Grade              *string
	Location           *string
	School             *string
	Role               *Role
	Subjects           *[]string
	LanguagePreference *[]string
	Mentor             *string

	// ClearMentor unsets the mentor. It wins over Mentor.
	ClearMentor bool
}

func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Grade == nil && u.Location == nil && u.School == nil &&
		u.Role == nil && u.Subjects == nil && u.LanguagePreference == nil && u.Mentor == nil &&
		!u.ClearMentor
}

// Apply returns p with the update applied. Timestamps are left to the caller.
func (u ProfileUpdate) Apply(p Profile) Profile {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Grade != nil {
		p.Grade = *u.Grade
	}
	if u.Location != nil {
		p.Location = *u.Location
	}
	if u.School != nil {
		p.School = *u.School
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.Subjects != nil {
		p.Subjects = append([]string{}, (*u.Subjects)...)
	}
	if u.LanguagePreference != nil {
		p.LanguagePreference = append([]string{}, (*u.LanguagePreference)...)
	}
	switch {
	case u.ClearMentor:
		p.Mentor = nil
	case u.Mentor != nil:
		mentor := *u.Mentor
		p.Mentor = &mentor
	}
	return p
}
