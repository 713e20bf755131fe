// Package testutil holds in-memory stand-ins for the Postgres store.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"studyhub/profiles/internal/model"
	"studyhub/profiles/internal/repository"
)

// Store mirrors repository.Store semantics closely enough for workflow and
// handler tests, including the sentinel errors it returns.
type Store struct {
	mu         sync.Mutex
	accounts   map[string]model.Account
	identities map[string]string
	sessions   map[string]model.RefreshSession
	profiles   map[string]model.Profile
	failures   map[string]error
}

func NewStore() *Store {
	return &Store{
		accounts:   map[string]model.Account{},
		identities: map[string]string{},
		sessions:   map[string]model.RefreshSession{},
		profiles:   map[string]model.Profile{},
		failures:   map[string]error{},
	}
}

// FailOn makes the named method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

func (s *Store) CreateAccount(_ context.Context, account model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateAccount"); err != nil {
		return err
	}
	if _, ok := s.accounts[account.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range s.accounts {
		if existing.Email == account.Email {
			return repository.ErrConflict
		}
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetAccountByEmail"); err != nil {
		return model.Account{}, err
	}
	for _, account := range s.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (s *Store) GetAccountByID(_ context.Context, accountID string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetAccountByID"); err != nil {
		return model.Account{}, err
	}
	account, ok := s.accounts[accountID]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return account, nil
}

func (s *Store) GetAccountByIdentity(_ context.Context, provider, subject string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accountID, ok := s.identities[provider+"|"+subject]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	account, ok := s.accounts[accountID]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return account, nil
}

func (s *Store) LinkIdentity(_ context.Context, identity model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[identity.AccountID]; !ok {
		return repository.ErrInvalidReference
	}
	key := identity.Provider + "|" + identity.Subject
	if _, ok := s.identities[key]; !ok {
		s.identities[key] = identity.AccountID
	}
	return nil
}

func (s *Store) UpdateAccountPassword(_ context.Context, accountID, passwordHash string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateAccountPassword"); err != nil {
		return err
	}
	account, ok := s.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.PasswordHash = passwordHash
	account.UpdatedAt = updatedAt
	s.accounts[accountID] = account
	return nil
}

func (s *Store) UpdateAccountMetadata(_ context.Context, accountID string, metadata model.AccountMetadata, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateAccountMetadata"); err != nil {
		return err
	}
	account, ok := s.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.Metadata = metadata
	account.UpdatedAt = updatedAt
	s.accounts[accountID] = account
	return nil
}

func (s *Store) ConfirmAccountEmail(_ context.Context, accountID string, confirmedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	if account.EmailConfirmedAt == nil {
		at := confirmedAt
		account.EmailConfirmedAt = &at
	}
	account.UpdatedAt = confirmedAt
	s.accounts[accountID] = account
	return nil
}

func (s *Store) CreateRefreshSession(_ context.Context, session model.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateRefreshSession"); err != nil {
		return err
	}
	if _, ok := s.accounts[session.AccountID]; !ok {
		return repository.ErrInvalidReference
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *Store) GetRefreshSession(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.TokenHash == tokenHash {
			return session, nil
		}
	}
	return model.RefreshSession{}, repository.ErrNotFound
}

func (s *Store) GetRefreshSessionByID(_ context.Context, sessionID string) (model.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetRefreshSessionByID"); err != nil {
		return model.RefreshSession{}, err
	}
	session, ok := s.sessions[sessionID]
	if !ok {
		return model.RefreshSession{}, repository.ErrNotFound
	}
	return session, nil
}

func (s *Store) RevokeRefreshSession(_ context.Context, sessionID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if ok && session.RevokedAt == nil {
		at := revokedAt
		session.RevokedAt = &at
		s.sessions[sessionID] = session
	}
	return nil
}

func (s *Store) RevokeRefreshSessionsByAccount(_ context.Context, accountID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.AccountID == accountID && session.RevokedAt == nil {
			at := revokedAt
			session.RevokedAt = &at
			s.sessions[id] = session
		}
	}
	return nil
}

func (s *Store) InsertProfile(_ context.Context, profile model.Profile) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertProfile"); err != nil {
		return model.Profile{}, err
	}
	if _, ok := s.profiles[profile.ID]; ok {
		return model.Profile{}, repository.ErrConflict
	}
	if _, ok := s.accounts[profile.ID]; !ok {
		return model.Profile{}, repository.ErrInvalidReference
	}
	if profile.Mentor != nil {
		if _, ok := s.accounts[*profile.Mentor]; !ok {
			return model.Profile{}, repository.ErrInvalidReference
		}
	}
	if profile.Subjects == nil {
		profile.Subjects = []string{}
	}
	if profile.LanguagePreference == nil {
		profile.LanguagePreference = []string{}
	}
	s.profiles[profile.ID] = profile
	return profile, nil
}

func (s *Store) GetProfile(_ context.Context, profileID string) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetProfile"); err != nil {
		return model.Profile{}, err
	}
	profile, ok := s.profiles[profileID]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	return profile, nil
}

func (s *Store) UpdateProfile(_ context.Context, profileID string, update model.ProfileUpdate, at time.Time) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateProfile"); err != nil {
		return model.Profile{}, err
	}
	profile, ok := s.profiles[profileID]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	if update.Mentor != nil && !update.ClearMentor {
		if _, ok := s.accounts[*update.Mentor]; !ok {
			return model.Profile{}, repository.ErrInvalidReference
		}
	}
	profile = update.Apply(profile)
	profile.UpdatedAt = at
	s.profiles[profileID] = profile
	return profile, nil
}

func (s *Store) SetProfileCompleted(_ context.Context, profileID string, completed bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetProfileCompleted"); err != nil {
		return err
	}
	profile, ok := s.profiles[profileID]
	if !ok {
		return repository.ErrNotFound
	}
	profile.ProfileCompleted = completed
	profile.UpdatedAt = at
	s.profiles[profileID] = profile
	return nil
}

func (s *Store) TouchLastLogin(_ context.Context, profileID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("TouchLastLogin"); err != nil {
		return err
	}
	profile, ok := s.profiles[profileID]
	if !ok {
		return repository.ErrNotFound
	}
	login := at
	profile.LastLogin = &login
	s.profiles[profileID] = profile
	return nil
}

func (s *Store) ListProfilesByMentor(_ context.Context, mentorID string, limit int) ([]model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	profiles := []model.Profile{}
	for _, profile := range s.profiles {
		if profile.Mentor != nil && *profile.Mentor == mentorID {
			profiles = append(profiles, profile)
		}
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	if len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return profiles, nil
}

// Account returns the stored account for assertions.
func (s *Store) Account(accountID string) (model.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	return account, ok
}

// Profile returns the stored profile for assertions.
func (s *Store) Profile(profileID string) (model.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[profileID]
	return profile, ok
}
