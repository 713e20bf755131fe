package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"studyhub/profiles/internal/model"
)

const profileColumns = `id, email, name, grade, location, school, role, subjects, language_preference,
    mentor, profile_completed, last_login, created_at, updated_at`

// InsertProfile writes the caller's own row under their row-level identity.
func (s *Store) InsertProfile(ctx context.Context, profile model.Profile) (model.Profile, error) {
	var created model.Profile
	err := s.asUser(ctx, profile.ID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
      INSERT INTO profiles (id, email, name, grade, location, school, role, subjects, language_preference,
        mentor, profile_completed, last_login, created_at, updated_at)
      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
      RETURNING `+profileColumns,
			profile.ID,
			profile.Email,
			profile.Name,
			profile.Grade,
			profile.Location,
			profile.School,
			nullRole(profile.Role),
			nonNil(profile.Subjects),
			nonNil(profile.LanguagePreference),
			profile.Mentor,
			profile.ProfileCompleted,
			profile.LastLogin,
			profile.CreatedAt,
			profile.UpdatedAt,
		)
		var err error
		created, err = scanProfile(row)
		return err
	})
	if err != nil {
		return model.Profile{}, mapError(err)
	}
	return created, nil
}

// TouchLastLogin records a sign-in on the caller's own row.
func (s *Store) TouchLastLogin(ctx context.Context, profileID string, at time.Time) error {
	return s.asUser(ctx, profileID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE profiles SET last_login = $1 WHERE id = $2`, at, profileID)
		if err != nil {
			return mapError(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetProfile(ctx context.Context, profileID string) (model.Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, profileID)
	return scanProfile(row)
}

// UpdateProfile applies only the fields set in update and always bumps updated_at.
func (s *Store) UpdateProfile(ctx context.Context, profileID string, update model.ProfileUpdate, at time.Time) (model.Profile, error) {
	var role interface{}
	if update.Role != nil {
		role = string(*update.Role)
	}
	row := s.pool.QueryRow(ctx, `
    UPDATE profiles SET
      name = COALESCE($2, name),
      grade = COALESCE($3, grade),
      location = COALESCE($4, location),
      school = COALESCE($5, school),
      role = COALESCE($6, role),
      subjects = COALESCE($7, subjects),
      language_preference = COALESCE($8, language_preference),
      mentor = CASE WHEN $11 THEN NULL ELSE COALESCE($9, mentor) END,
      updated_at = $10
    WHERE id = $1
    RETURNING `+profileColumns,
		profileID,
		update.Name,
		update.Grade,
		update.Location,
		update.School,
		role,
		update.Subjects,
		update.LanguagePreference,
		update.Mentor,
		at,
		update.ClearMentor,
	)
	return scanProfile(row)
}

func (s *Store) SetProfileCompleted(ctx context.Context, profileID string, completed bool, at time.Time) error {
	return s.execOne(ctx, `UPDATE profiles SET profile_completed = $1, updated_at = $2 WHERE id = $3`, completed, at, profileID)
}

func (s *Store) ListProfilesByMentor(ctx context.Context, mentorID string, limit int) ([]model.Profile, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
    SELECT `+profileColumns+`
    FROM profiles
    WHERE mentor = $1
    ORDER BY name ASC, created_at ASC
    LIMIT $2
  `, mentorID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	profiles := []model.Profile{}
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, mapError(rows.Err())
}

func scanProfile(row pgx.Row) (model.Profile, error) {
	var profile model.Profile
	var role *string
	err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.Name,
		&profile.Grade,
		&profile.Location,
		&profile.School,
		&role,
		&profile.Subjects,
		&profile.LanguagePreference,
		&profile.Mentor,
		&profile.ProfileCompleted,
		&profile.LastLogin,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return model.Profile{}, mapError(err)
	}
	if role != nil {
		profile.Role = model.Role(*role)
	}
	return profile, nil
}

func nullRole(role model.Role) interface{} {
	if role == "" {
		return nil
	}
	return string(role)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
