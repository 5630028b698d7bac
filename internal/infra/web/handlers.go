package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"premium-access/internal/domain"
	"premium-access/internal/domain/model"
	"premium-access/internal/usecase"
)

const maxBatchCodes = 100

// ---- wire types ----

type errorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type sessionResponse struct {
	UserID       string            `json:"user_id"`
	DeviceID     string            `json:"device_id"`
	DeviceInfo   map[string]string `json:"device_info,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

type codeResponse struct {
	ID          string      `json:"id"`
	Code        string      `json:"code"`
	Tier        string      `json:"tier"`
	StartsAt    time.Time   `json:"starts_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	IsActive    bool        `json:"is_active"`
	GeneratedBy string      `json:"generated_by,omitempty"`
	UsedBy      []string    `json:"used_by"`
	UsedAt      []time.Time `json:"used_at"`
}

func toSessionResponses(sessions []*model.UserSession) []sessionResponse {
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			UserID:       s.UserID,
			DeviceID:     s.DeviceID,
			DeviceInfo:   s.DeviceInfo,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
		})
	}
	return out
}

func toCodeResponse(c *model.PremiumCode) codeResponse {
	return codeResponse{
		ID:          c.ID,
		Code:        c.Code,
		Tier:        c.Tier,
		StartsAt:    c.StartsAt,
		ExpiresAt:   c.ExpiresAt,
		IsActive:    c.IsActive,
		GeneratedBy: c.GeneratedBy,
		UsedBy:      c.UsedBy,
		UsedAt:      c.UsedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Validation
// and admission errors stay distinguishable so the caller can render the
// right remediation; everything else degrades to a generic retry-later.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var limitErr *usecase.DeviceLimitExceededError
	switch {
	case errors.As(err, &limitErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   "device_limit_exceeded",
			Message: limitErr.Error(),
			Details: map[string]interface{}{
				"limit":    limitErr.Limit,
				"sessions": toSessionResponses(limitErr.Sessions),
			},
		})
	case errors.Is(err, domain.ErrCodeNotFound):
		writeError(w, http.StatusNotFound, "code_not_found", "no such code")
	case errors.Is(err, domain.ErrCodeInactive):
		writeError(w, http.StatusGone, "code_inactive", "this code has been deactivated")
	case errors.Is(err, domain.ErrCodeExpired):
		writeError(w, http.StatusGone, "code_expired", "this code has expired")
	case errors.Is(err, domain.ErrCodeAlreadyRedeemed):
		writeError(w, http.StatusConflict, "already_redeemed", "you have already redeemed this code")
	case errors.Is(err, domain.ErrCodeClaimed):
		writeError(w, http.StatusConflict, "code_claimed", "this code has been claimed by another user")
	case errors.Is(err, domain.ErrNotPremium):
		writeError(w, http.StatusForbidden, "not_premium", "no premium entitlement")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid request")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	default:
		s.log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal", "temporary failure, try again later")
	}
}

// ---- auth ----

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "malformed body")
		return
	}
	if s.password == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.password)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized", "wrong password")
		return
	}
	if _, err := s.auth.Mint(w); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- codes ----

func (s *Server) handleCreateCodes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier         string     `json:"tier"`
		Count        int        `json:"count"`
		GeneratedBy  string     `json:"generated_by"`
		StartsAt     *time.Time `json:"starts_at"`
		DurationDays *int       `json:"duration_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "malformed body")
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Count > maxBatchCodes {
		writeError(w, http.StatusBadRequest, "invalid_argument", "count too large")
		return
	}
	if req.GeneratedBy == "" {
		req.GeneratedBy = "admin"
	}

	params := usecase.CreateCodeParams{
		Tier:        req.Tier,
		GeneratedBy: req.GeneratedBy,
		StartsAt:    req.StartsAt,
	}
	if req.DurationDays != nil {
		d := time.Duration(*req.DurationDays) * 24 * time.Hour
		params.Duration = &d
	}

	out := make([]codeResponse, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		code, err := s.codeUC.Create(r.Context(), params)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		out = append(out, toCodeResponse(code))
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"codes": out})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code   string `json:"code"`
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "malformed body")
		return
	}
	if !s.throttle(w, r, req.UserID, "redeem") {
		return
	}
	code, err := s.codeUC.Redeem(r.Context(), req.Code, req.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCodeResponse(code))
}

func (s *Server) handleDeactivateCode(w http.ResponseWriter, r *http.Request) {
	if err := s.codeUC.Deactivate(r.Context(), chi.URLParam(r, "code")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Server) handleRevokeForUser(w http.ResponseWriter, r *http.Request) {
	err := s.codeUC.RevokeForUser(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) handleRevokeAllForUser(w http.ResponseWriter, r *http.Request) {
	n, err := s.codeUC.RevokeAllForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *Server) handleListUserCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.codeUC.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]codeResponse, 0, len(codes))
	for _, c := range codes {
		out = append(out, toCodeResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"codes": out})
}

// ---- entitlement ----

func (s *Server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	status, err := s.entitleUC.Resolve(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := map[string]interface{}{"is_premium": status.IsPremium}
	if status.IsPremium {
		resp["tier"] = status.Tier
		resp["code_id"] = status.CodeID
		resp["expires_at"] = status.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- sessions ----

func (s *Server) handleSessionLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string            `json:"user_id"`
		DeviceID   string            `json:"device_id"`
		DeviceInfo map[string]string `json:"device_info"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "malformed body")
		return
	}
	if !s.throttle(w, r, req.UserID, "login") {
		return
	}
	sess, err := s.admissionUC.AttemptLogin(r.Context(), req.UserID, req.DeviceID, req.DeviceInfo)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:       sess.UserID,
		DeviceID:     sess.DeviceID,
		DeviceInfo:   sess.DeviceInfo,
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessionUC.ListActive(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": toSessionResponses(sessions)})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	existed, err := s.sessionUC.Disconnect(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "deviceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": existed})
}

func (s *Server) handleDisconnectAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.sessionUC.DisconnectAll(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}
