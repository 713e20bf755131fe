package operations

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyhub/profiles/internal/identity"
	"studyhub/profiles/internal/model"
	"studyhub/profiles/internal/repository"
)

// ProfileStore covers both access paths: InsertProfile runs as the end user,
// everything else uses the elevated pool.
type ProfileStore interface {
	InsertProfile(ctx context.Context, profile model.Profile) (model.Profile, error)
	GetProfile(ctx context.Context, profileID string) (model.Profile, error)
	UpdateProfile(ctx context.Context, profileID string, update model.ProfileUpdate, at time.Time) (model.Profile, error)
	SetProfileCompleted(ctx context.Context, profileID string, completed bool, at time.Time) error
	ListProfilesByMentor(ctx context.Context, mentorID string, limit int) ([]model.Profile, error)
}

// AccountUpdater keeps account metadata in step with the profile.
type AccountUpdater interface {
	UpdateUserByID(ctx context.Context, accountID string, update identity.UserUpdate) (model.Account, error)
}

type Profiles struct {
	store    ProfileStore
	accounts AccountUpdater
	logger   *slog.Logger
	now      func() time.Time
}

func NewProfiles(store ProfileStore, accounts AccountUpdater, logger *slog.Logger) *Profiles {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiles{
		store:    store,
		accounts: accounts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for updated_at stamps.
func (p *Profiles) SetClock(now func() time.Time) {
	p.now = now
}

type CreateProfileInput struct {
	Name               string
	Grade              string
	Location           string
	School             string
	Role               string
	Subjects           []string
	LanguagePreference []string
	Mentor             *string
}

func (p *Profiles) CreateProfile(ctx context.Context, caller model.Account, in CreateProfileInput) (model.Profile, error) {
	role, err := optionalRole(in.Role)
	if err != nil {
		return model.Profile{}, err
	}
	mentor, err := mentorRef(caller.ID, in.Mentor)
	if err != nil {
		return model.Profile{}, err
	}

	now := p.now()
	profile := model.Profile{
		ID:                 caller.ID,
		Email:              caller.Email,
		Name:               strings.TrimSpace(in.Name),
		Grade:              strings.TrimSpace(in.Grade),
		Location:           strings.TrimSpace(in.Location),
		School:             strings.TrimSpace(in.School),
		Role:               role,
		Subjects:           cleanList(in.Subjects),
		LanguagePreference: cleanList(in.LanguagePreference),
		Mentor:             mentor,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	profile.ProfileCompleted = EvaluateCompletion(profile).IsComplete

	created, err := p.store.InsertProfile(ctx, profile)
	if err != nil {
		return model.Profile{}, p.fail(ctx, "create_profile", caller.ID, storeError(err, "Failed to create profile"))
	}
	if created.ProfileCompleted {
		p.syncAccount(ctx, created.ID, true)
	}
	return created, nil
}

func (p *Profiles) GetProfile(ctx context.Context, userID string) (model.Profile, error) {
	profile, err := p.store.GetProfile(ctx, userID)
	if err != nil {
		return model.Profile{}, p.fail(ctx, "get_profile", userID, storeError(err, "Failed to fetch profile"))
	}
	return profile, nil
}

// UpdateProfile changes only the fields set in update; updated_at is always
// stamped, even for an empty update. A blank mentor clears the mentor.
func (p *Profiles) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (model.Profile, error) {
	if update.Role != nil {
		role, ok := model.ParseRole(string(*update.Role))
		if !ok {
			return model.Profile{}, invalidRole()
		}
		update.Role = &role
	}
	if update.Mentor != nil {
		mentor, err := mentorRef(userID, update.Mentor)
		if err != nil {
			return model.Profile{}, err
		}
		update.Mentor = mentor
		if mentor == nil {
			update.ClearMentor = true
		}
	}
	update.Name = trimmed(update.Name)
	update.Grade = trimmed(update.Grade)
	update.Location = trimmed(update.Location)
	update.School = trimmed(update.School)
	if update.Subjects != nil {
		subjects := cleanList(*update.Subjects)
		update.Subjects = &subjects
	}
	if update.LanguagePreference != nil {
		languages := cleanList(*update.LanguagePreference)
		update.LanguagePreference = &languages
	}

	profile, err := p.store.UpdateProfile(ctx, userID, update, p.now())
	if err != nil {
		return model.Profile{}, p.fail(ctx, "update_profile", userID, storeError(err, "Failed to update profile"))
	}
	return profile, nil
}

// CheckProfileCompletion evaluates the stored profile and persists the
// result on every call. A missing profile is a normal, incomplete answer.
func (p *Profiles) CheckProfileCompletion(ctx context.Context, userID string) (Completion, error) {
	profile, err := p.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Completion{IsComplete: false, Message: "Profile not found"}, nil
		}
		return Completion{}, p.fail(ctx, "check_completion", userID, upstream("Failed to check profile completion", err))
	}

	completion := EvaluateCompletion(profile)
	if err := p.store.SetProfileCompleted(ctx, userID, completion.IsComplete, p.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Completion{IsComplete: false, Message: "Profile not found"}, nil
		}
		return Completion{}, p.fail(ctx, "check_completion", userID, upstream("Failed to check profile completion", err))
	}
	if profile.ProfileCompleted != completion.IsComplete {
		p.syncAccount(ctx, userID, completion.IsComplete)
	}
	return completion, nil
}

// ListMentees returns the profiles that name mentorID as their mentor.
func (p *Profiles) ListMentees(ctx context.Context, mentorID string, limit int) ([]model.Profile, error) {
	profiles, err := p.store.ListProfilesByMentor(ctx, mentorID, limit)
	if err != nil {
		return nil, p.fail(ctx, "list_mentees", mentorID, upstream("Failed to list mentees", err))
	}
	return profiles, nil
}

// Role reads the caller's role through the elevated path for access checks.
func (p *Profiles) Role(ctx context.Context, userID string) (model.Role, error) {
	profile, err := p.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", &Error{Kind: KindAuthorization, Message: "Unable to verify user role", Err: err}
		}
		return "", p.fail(ctx, "role", userID, upstream("Authorization check failed", err))
	}
	if profile.Role == "" {
		return "", &Error{Kind: KindAuthorization, Message: "Unable to verify user role"}
	}
	return profile.Role, nil
}

func (p *Profiles) syncAccount(ctx context.Context, userID string, completed bool) {
	if p.accounts == nil {
		return
	}
	if _, err := p.accounts.UpdateUserByID(ctx, userID, identity.UserUpdate{HasCompletedProfile: &completed}); err != nil {
		p.logger.WarnContext(ctx, "account metadata sync failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (p *Profiles) fail(ctx context.Context, op, userID string, err *Error) error {
	if err.Kind == KindUpstream {
		p.logger.ErrorContext(ctx, "profile workflow failed",
			slog.String("op", op),
			slog.String("user_id", userID),
			slog.Any("error", err.Err),
		)
	}
	return err
}

func optionalRole(raw string) (model.Role, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	role, ok := model.ParseRole(raw)
	if !ok {
		return "", invalidRole()
	}
	return role, nil
}

func invalidRole() *Error {
	return validation("Role must be one of student, teacher, mentor or admin", map[string]string{"role": "invalid"})
}

func mentorRef(userID string, raw *string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, validation("Mentor must be a user id", map[string]string{"mentor": "invalid"})
	}
	mentor := id.String()
	if mentor == userID {
		return nil, validation("You cannot be your own mentor", map[string]string{"mentor": "self"})
	}
	return &mentor, nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]bool{}
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}
