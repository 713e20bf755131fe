package http

import (
	"net/http"
	"net/url"
	"strconv"

	"studyhub/profiles/internal/identity"
	"studyhub/profiles/internal/operations"
)

type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type resetPasswordRequest struct {
	Email string `json:"email"`
}

type updatePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	account, err := s.auth.SignUp(r.Context(), operations.SignUpInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Account created successfully. Please check your email for verification.", map[string]interface{}{
		"user": map[string]string{"email": account.Email},
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	session, err := s.auth.SignIn(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Signed in successfully", map[string]interface{}{
		"user":        newUserView(session.Account),
		"session":     newSessionView(session),
		"accessToken": session.AccessToken,
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), tokenFromContext(r.Context())); err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Signed out successfully", nil)
}

func (s *Server) handleSignInWithGoogle(w http.ResponseWriter, r *http.Request) {
	authz, err := s.auth.SignInWithGoogle(r.Context())
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Google sign-in URL generated successfully", map[string]interface{}{
		"url":        authz.URL,
		"state":      authz.State,
		"expires_at": authz.ExpiresAt.Unix(),
	})
}

// handleGoogleCallback finishes the provider redirect and hands the session
// to the frontend in the URL fragment, where it never reaches a server log.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		s.redirectLoginError(w, r, providerErr)
		return
	}
	state := query.Get("state")
	session, err := s.auth.CompleteOAuth(r.Context(), "google", state, query.Get("code"), clientInfo(r))
	if err != nil {
		s.redirectLoginError(w, r, errorCode(err))
		return
	}

	fragment := sessionFragment(session)
	fragment.Set("state", state)
	http.Redirect(w, r, s.cfg.FrontendURL+"/auth/callback#"+fragment.Encode(), http.StatusFound)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	verification, err := s.auth.Verify(r.Context(), query.Get("type"), query.Get("token"), clientInfo(r))
	if err != nil {
		s.redirectLoginError(w, r, errorCode(err))
		return
	}
	if verification.Kind == identity.KindRecovery && verification.Session != nil {
		fragment := sessionFragment(*verification.Session)
		fragment.Set("type", "recovery")
		http.Redirect(w, r, s.cfg.FrontendURL+"/reset-password#"+fragment.Encode(), http.StatusFound)
		return
	}
	http.Redirect(w, r, s.cfg.FrontendURL+"/login?confirmed=true", http.StatusFound)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	session, err := s.auth.Refresh(r.Context(), req.RefreshToken, clientInfo(r))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Session refreshed", map[string]interface{}{
		"session":     newSessionView(session),
		"accessToken": session.AccessToken,
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.auth.ResetPassword(r.Context(), req.Email); err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset email sent. Please check your inbox.", nil)
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	caller, _ := accountFromContext(r.Context())
	if err := s.auth.UpdatePassword(r.Context(), caller, caller.ID, req.NewPassword); err != nil {
		writeOperationError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password updated successfully", nil)
}

func (s *Server) redirectLoginError(w http.ResponseWriter, r *http.Request, code string) {
	query := url.Values{}
	query.Set("error", code)
	http.Redirect(w, r, s.cfg.FrontendURL+"/login?"+query.Encode(), http.StatusFound)
}

func sessionFragment(session identity.Session) url.Values {
	fragment := url.Values{}
	fragment.Set("access_token", session.AccessToken)
	fragment.Set("refresh_token", session.RefreshToken)
	fragment.Set("expires_at", strconv.FormatInt(session.ExpiresAt.Unix(), 10))
	fragment.Set("expires_in", strconv.FormatInt(session.ExpiresIn, 10))
	fragment.Set("token_type", session.TokenType)
	return fragment
}

func errorCode(err error) string {
	switch operations.KindOf(err) {
	case operations.KindValidation:
		return "invalid_request"
	case operations.KindAuthentication:
		return "access_denied"
	default:
		return "server_error"
	}
}

func clientInfo(r *http.Request) identity.ClientInfo {
	return identity.ClientInfo{UserAgent: r.UserAgent(), IP: clientIP(r)}
}
