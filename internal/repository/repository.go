package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub/profiles/internal/model"
)

// Store talks to Postgres with the pool owner's role, which bypasses the
// row-level policies on profiles. End-user scoped writes go through asUser.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const accountColumns = `id, email, password_hash, metadata, email_confirmed_at, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, account model.Account) error {
	metadata, err := json.Marshal(account.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
    INSERT INTO accounts (id, email, password_hash, metadata, email_confirmed_at, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
  `, account.ID, account.Email, account.PasswordHash, metadata, account.EmailConfirmedAt, account.CreatedAt, account.UpdatedAt)
	return mapError(err)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

func (s *Store) GetAccountByID(ctx context.Context, accountID string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

func (s *Store) GetAccountByIdentity(ctx context.Context, provider, subject string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `
    SELECT a.id, a.email, a.password_hash, a.metadata, a.email_confirmed_at, a.created_at, a.updated_at
    FROM accounts a
    JOIN account_identities i ON i.account_id = a.id
    WHERE i.provider = $1 AND i.subject = $2
  `, provider, subject)
	return scanAccount(row)
}

func (s *Store) LinkIdentity(ctx context.Context, identity model.Identity) error {
	_, err := s.pool.Exec(ctx, `
    INSERT INTO account_identities (provider, subject, account_id, created_at)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (provider, subject) DO NOTHING
  `, identity.Provider, identity.Subject, identity.AccountID, identity.CreatedAt)
	return mapError(err)
}

func (s *Store) UpdateAccountPassword(ctx context.Context, accountID, passwordHash string, updatedAt time.Time) error {
	return s.execOne(ctx, `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`, passwordHash, updatedAt, accountID)
}

func (s *Store) UpdateAccountMetadata(ctx context.Context, accountID string, metadata model.AccountMetadata, updatedAt time.Time) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return s.execOne(ctx, `UPDATE accounts SET metadata = $1, updated_at = $2 WHERE id = $3`, data, updatedAt, accountID)
}

func (s *Store) ConfirmAccountEmail(ctx context.Context, accountID string, confirmedAt time.Time) error {
	return s.execOne(ctx, `
    UPDATE accounts
    SET email_confirmed_at = COALESCE(email_confirmed_at, $1), updated_at = $1
    WHERE id = $2
  `, confirmedAt, accountID)
}

func (s *Store) CreateRefreshSession(ctx context.Context, session model.RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
    INSERT INTO refresh_sessions (id, account_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
  `, session.ID, session.AccountID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.RevokedAt, session.UserAgent, session.IPAddress)
	return mapError(err)
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	row := s.pool.QueryRow(ctx, `
    SELECT id, account_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address
    FROM refresh_sessions
    WHERE token_hash = $1
  `, tokenHash)
	return scanSession(row)
}

func (s *Store) GetRefreshSessionByID(ctx context.Context, sessionID string) (model.RefreshSession, error) {
	row := s.pool.QueryRow(ctx, `
    SELECT id, account_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address
    FROM refresh_sessions
    WHERE id = $1
  `, sessionID)
	return scanSession(row)
}

func (s *Store) RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_sessions SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, revokedAt, sessionID)
	return mapError(err)
}

func (s *Store) RevokeRefreshSessionsByAccount(ctx context.Context, accountID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_sessions SET revoked_at = $1 WHERE account_id = $2 AND revoked_at IS NULL`, revokedAt, accountID)
	return mapError(err)
}

func (s *Store) execOne(ctx context.Context, query string, args ...interface{}) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// asUser runs fn in a transaction as app_authenticated with app.user_id set,
// so the profiles row-level policies apply.
func (s *Store) asUser(ctx context.Context, userID string, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SET LOCAL ROLE app_authenticated`); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.user_id', $1, true)`, userID); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func scanAccount(row pgx.Row) (model.Account, error) {
	var account model.Account
	var metadata []byte
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&metadata,
		&account.EmailConfirmedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return model.Account{}, mapError(err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &account.Metadata); err != nil {
			return model.Account{}, err
		}
	}
	return account, nil
}

func scanSession(row pgx.Row) (model.RefreshSession, error) {
	var session model.RefreshSession
	err := row.Scan(&session.ID, &session.AccountID, &session.TokenHash, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt, &session.UserAgent, &session.IPAddress)
	if err != nil {
		return model.RefreshSession{}, mapError(err)
	}
	return session, nil
}
