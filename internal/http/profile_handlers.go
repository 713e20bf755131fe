package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studyhub/profiles/internal/model"
	"studyhub/profiles/internal/operations"
)

type createProfileRequest struct {
	Name               string     `json:"name"`
	Grade              flexString `json:"grade"`
	Location           string     `json:"location"`
	School             string     `json:"school"`
	Role               string     `json:"role"`
	Subjects           []string   `json:"subjects"`
	LanguagePreference []string   `json:"language_preference"`
	Mentor             *string    `json:"mentor"`
}

// updateProfileRequest carries only the fields the client sent. fullName is
// the name the account screens use for the same column.
type updateProfileRequest struct {
	Name               *string     `json:"name"`
	FullName           *string     `json:"fullName"`
	Grade              *flexString `json:"grade"`
	Location           *string     `json:"location"`
	School             *string     `json:"school"`
	Role               *string     `json:"role"`
	Subjects           *[]string   `json:"subjects"`
	LanguagePreference *[]string   `json:"language_preference"`
	Mentor             *string     `json:"mentor"`
}

func (req updateProfileRequest) update() model.ProfileUpdate {
	update := model.ProfileUpdate{
		Name:               req.Name,
		Location:           req.Location,
		School:             req.School,
		Subjects:           req.Subjects,
		LanguagePreference: req.LanguagePreference,
		Mentor:             req.Mentor,
	}
	if update.Name == nil {
		update.Name = req.FullName
	}
	if req.Grade != nil {
		grade := string(*req.Grade)
		update.Grade = &grade
	}
	if req.Role != nil {
		role := model.Role(*req.Role)
		update.Role = &role
	}
	return update
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	caller, _ := accountFromContext(r.Context())
	profile, err := s.profiles.CreateProfile(r.Context(), caller, operations.CreateProfileInput{
		Name:               req.Name,
		Grade:              string(req.Grade),
		Location:           req.Location,
		School:             req.School,
		Role:               req.Role,
		Subjects:           req.Subjects,
		LanguagePreference: req.LanguagePreference,
		Mentor:             req.Mentor,
	})
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile created successfully", map[string]interface{}{
		"profile": newProfileView(profile),
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	caller, _ := accountFromContext(r.Context())
	profile, err := s.profiles.GetProfile(r.Context(), caller.ID)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]interface{}{"profile": newProfileView(profile)})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	caller, _ := accountFromContext(r.Context())
	profile, err := s.profiles.UpdateProfile(r.Context(), caller.ID, req.update())
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile updated successfully", map[string]interface{}{
		"profile": newProfileView(profile),
	})
}

func (s *Server) handleHasCompletedProfile(w http.ResponseWriter, r *http.Request) {
	caller, _ := accountFromContext(r.Context())
	completion, err := s.profiles.CheckProfileCompletion(r.Context(), caller.ID)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]interface{}{"hasCompleted": completion})
}

func (s *Server) handleListMentees(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	caller, _ := accountFromContext(r.Context())
	profiles, err := s.profiles.ListMentees(r.Context(), caller.ID, limit)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	views := make([]profileView, 0, len(profiles))
	for _, profile := range profiles {
		views = append(views, newProfileView(profile))
	}
	writeSuccess(w, http.StatusOK, "", map[string]interface{}{"profiles": views})
}

func (s *Server) handleGetUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if _, err := uuid.Parse(userID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	profile, err := s.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]interface{}{"profile": newProfileView(profile)})
}
