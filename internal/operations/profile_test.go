package operations

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"studyhub/profiles/internal/identity"
	"studyhub/profiles/internal/model"
	"studyhub/profiles/internal/testutil"
)

type recordingUpdater struct {
	calls []bool
	err   error
}

func (r *recordingUpdater) UpdateUserByID(_ context.Context, accountID string, update identity.UserUpdate) (model.Account, error) {
	if update.HasCompletedProfile != nil {
		r.calls = append(r.calls, *update.HasCompletedProfile)
	}
	return model.Account{ID: accountID}, r.err
}

func newProfiles(t *testing.T) (*Profiles, *testutil.Store, *recordingUpdater, model.Account) {
	t.Helper()
	store := testutil.NewStore()
	account := model.Account{ID: "6f1c1a8e-1111-4a1a-9a1a-000000000001", Email: "ada@example.com"}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	updater := &recordingUpdater{}
	return NewProfiles(store, updater, nil), store, updater, account
}

func completeInput() CreateProfileInput {
	return CreateProfileInput{
		Name:               "Ada",
		Grade:              "10",
		Location:           "London",
		School:             "Hill School",
		Role:               "student",
		Subjects:           []string{"math", "physics"},
		LanguagePreference: []string{"en"},
	}
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	profiles, _, updater, account := newProfiles(t)
	ctx := context.Background()

	created, err := profiles.CreateProfile(ctx, account, completeInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := profiles.GetProfile(ctx, account.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(created, got) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", created, got)
	}
	if got.Email != account.Email || got.Role != model.RoleStudent || !reflect.DeepEqual(got.Subjects, []string{"math", "physics"}) {
		t.Fatalf("unexpected fields %+v", got)
	}
	if !got.ProfileCompleted {
		t.Fatalf("expected completion to be evaluated on insert")
	}
	if len(updater.calls) != 1 || !updater.calls[0] {
		t.Fatalf("expected metadata sync, got %v", updater.calls)
	}
}

func TestCreateProfileConflict(t *testing.T) {
	profiles, _, _, account := newProfiles(t)
	ctx := context.Background()
	if _, err := profiles.CreateProfile(ctx, account, completeInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := profiles.CreateProfile(ctx, account, completeInput())
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateProfileValidation(t *testing.T) {
	profiles, _, _, account := newProfiles(t)
	ctx := context.Background()

	in := completeInput()
	in.Role = "janitor"
	if _, err := profiles.CreateProfile(ctx, account, in); KindOf(err) != KindValidation {
		t.Fatalf("expected validation for role, got %v", err)
	}

	in = completeInput()
	bad := "not-a-uuid"
	in.Mentor = &bad
	if _, err := profiles.CreateProfile(ctx, account, in); KindOf(err) != KindValidation {
		t.Fatalf("expected validation for mentor, got %v", err)
	}

	in = completeInput()
	self := account.ID
	in.Mentor = &self
	if _, err := profiles.CreateProfile(ctx, account, in); KindOf(err) != KindValidation {
		t.Fatalf("expected validation for self mentor, got %v", err)
	}

	in = completeInput()
	unknown := "6f1c1a8e-1111-4a1a-9a1a-0000000000ff"
	in.Mentor = &unknown
	_, err := profiles.CreateProfile(ctx, account, in)
	var opErr *Error
	if !errors.As(err, &opErr) || opErr.Kind != KindValidation || opErr.Fields["mentor"] != "unknown" {
		t.Fatalf("expected unknown mentor validation, got %v", err)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	profiles, _, _, _ := newProfiles(t)
	if _, err := profiles.GetProfile(context.Background(), "missing"); KindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEmptyUpdateOnlyStampsUpdatedAt(t *testing.T) {
	profiles, store, _, account := newProfiles(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	profiles.SetClock(func() time.Time { return start })
	before, err := profiles.CreateProfile(ctx, account, completeInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	later := start.Add(time.Hour)
	profiles.SetClock(func() time.Time { return later })
	after, err := profiles.UpdateProfile(ctx, account.ID, model.ProfileUpdate{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !after.UpdatedAt.Equal(later) {
		t.Fatalf("expected updated_at %s, got %s", later, after.UpdatedAt)
	}
	after.UpdatedAt = before.UpdatedAt
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("empty update changed fields:\n%+v\n%+v", before, after)
	}
	stored, _ := store.Profile(account.ID)
	if !stored.UpdatedAt.Equal(later) {
		t.Fatalf("expected stored updated_at to change")
	}
}

func TestPartialUpdate(t *testing.T) {
	profiles, _, _, account := newProfiles(t)
	ctx := context.Background()
	if _, err := profiles.CreateProfile(ctx, account, CreateProfileInput{Name: "Ada"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	role := model.Role("Teacher")
	grade := " 12 "
	updated, err := profiles.UpdateProfile(ctx, account.ID, model.ProfileUpdate{Role: &role, Grade: &grade})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Role != model.RoleTeacher || updated.Grade != "12" || updated.Name != "Ada" {
		t.Fatalf("unexpected update result %+v", updated)
	}

	bogus := model.Role("wizard")
	if _, err := profiles.UpdateProfile(ctx, account.ID, model.ProfileUpdate{Role: &bogus}); KindOf(err) != KindValidation {
		t.Fatalf("expected validation, got %v", err)
	}
	if _, err := profiles.UpdateProfile(ctx, "6f1c1a8e-1111-4a1a-9a1a-0000000000aa", model.ProfileUpdate{}); KindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateProfileClearsMentor(t *testing.T) {
	profiles, store, _, account := newProfiles(t)
	ctx := context.Background()
	mentor := model.Account{ID: "6f1c1a8e-1111-4a1a-9a1a-000000000002", Email: "grace@example.com"}
	if err := store.CreateAccount(ctx, mentor); err != nil {
		t.Fatalf("seed mentor: %v", err)
	}
	mentorID := mentor.ID
	if _, err := profiles.CreateProfile(ctx, account, CreateProfileInput{Name: "Ada", Mentor: &mentorID}); err != nil {
		t.Fatalf("create: %v", err)
	}

	unchanged, err := profiles.UpdateProfile(ctx, account.ID, model.ProfileUpdate{})
	if err != nil {
		t.Fatalf("empty update: %v", err)
	}
	if unchanged.Mentor == nil || *unchanged.Mentor != mentor.ID {
		t.Fatalf("omitted mentor must be kept, got %v", unchanged.Mentor)
	}

	blank := "  "
	cleared, err := profiles.UpdateProfile(ctx, account.ID, model.ProfileUpdate{Mentor: &blank})
	if err != nil {
		t.Fatalf("clear mentor: %v", err)
	}
	if cleared.Mentor != nil {
		t.Fatalf("expected mentor cleared, got %v", *cleared.Mentor)
	}
	stored, _ := store.Profile(account.ID)
	if stored.Mentor != nil {
		t.Fatalf("stored mentor not cleared: %v", *stored.Mentor)
	}
}

func TestCheckCompletionMissingProfile(t *testing.T) {
	profiles, _, _, _ := newProfiles(t)
	got, err := profiles.CheckProfileCompletion(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.IsComplete || got.Message != "Profile not found" {
		t.Fatalf("unexpected completion %+v", got)
	}
}

func TestCheckCompletionPersistsFlag(t *testing.T) {
	profiles, store, updater, account := newProfiles(t)
	ctx := context.Background()
	if _, err := profiles.CreateProfile(ctx, account, CreateProfileInput{Name: "Ada", Role: "student"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := profiles.CheckProfileCompletion(ctx, account.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	want := []string{"grade", "location", "school", "subjects", "language_preference"}
	if got.IsComplete || !reflect.DeepEqual(got.MissingFields, want) {
		t.Fatalf("unexpected completion %+v", got)
	}

	grade, location, school := "10", "London", "Hill"
	subjects, languages := []string{"math"}, []string{"en"}
	if _, err := profiles.UpdateProfile(ctx, account.ID, model.ProfileUpdate{
		Grade: &grade, Location: &location, School: &school,
		Subjects: &subjects, LanguagePreference: &languages,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err = profiles.CheckProfileCompletion(ctx, account.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !got.IsComplete || got.Message != "Profile is complete" {
		t.Fatalf("expected complete, got %+v", got)
	}
	stored, _ := store.Profile(account.ID)
	if !stored.ProfileCompleted {
		t.Fatalf("expected flag persisted")
	}
	if len(updater.calls) != 1 || !updater.calls[0] {
		t.Fatalf("expected one metadata sync, got %v", updater.calls)
	}

	// Unchanged flag is still written, without another metadata sync.
	if _, err := profiles.CheckProfileCompletion(ctx, account.ID); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(updater.calls) != 1 {
		t.Fatalf("unexpected extra sync %v", updater.calls)
	}
}

func TestCheckCompletionPersistFailure(t *testing.T) {
	profiles, store, _, account := newProfiles(t)
	ctx := context.Background()
	if _, err := profiles.CreateProfile(ctx, account, completeInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	store.FailOn("SetProfileCompleted", errors.New("connection reset"))
	if _, err := profiles.CheckProfileCompletion(ctx, account.ID); KindOf(err) != KindUpstream {
		t.Fatalf("expected upstream, got %v", err)
	}
}

func TestCheckCompletionIgnoresSyncFailure(t *testing.T) {
	profiles, _, updater, account := newProfiles(t)
	updater.err = errors.New("metadata down")
	ctx := context.Background()
	if _, err := profiles.CreateProfile(ctx, account, completeInput()); err != nil {
		t.Fatalf("create should not fail on metadata sync, got %v", err)
	}
}

func TestListMenteesAndRole(t *testing.T) {
	profiles, store, _, mentor := newProfiles(t)
	ctx := context.Background()
	mentee := model.Account{ID: "6f1c1a8e-1111-4a1a-9a1a-000000000002", Email: "bob@example.com"}
	if err := store.CreateAccount(ctx, mentee); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := profiles.Role(ctx, mentor.ID); KindOf(err) != KindAuthorization {
		t.Fatalf("expected authorization error without profile, got %v", err)
	}

	if _, err := profiles.CreateProfile(ctx, mentor, CreateProfileInput{Name: "Ada", Role: "mentor"}); err != nil {
		t.Fatalf("create mentor: %v", err)
	}
	id := mentor.ID
	if _, err := profiles.CreateProfile(ctx, mentee, CreateProfileInput{Name: "Bob", Role: "student", Mentor: &id}); err != nil {
		t.Fatalf("create mentee: %v", err)
	}

	role, err := profiles.Role(ctx, mentor.ID)
	if err != nil || role != model.RoleMentor {
		t.Fatalf("expected mentor role, got %s %v", role, err)
	}
	mentees, err := profiles.ListMentees(ctx, mentor.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mentees) != 1 || mentees[0].ID != mentee.ID {
		t.Fatalf("unexpected mentees %+v", mentees)
	}
}
