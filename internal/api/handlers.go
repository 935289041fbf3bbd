package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/accounts"
	"github.com/pysugar/launcher-accounts/internal/auth/login"
	"github.com/pysugar/launcher-accounts/internal/credentials"
	"github.com/pysugar/launcher-accounts/internal/db"
	"github.com/pysugar/launcher-accounts/internal/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handler struct {
	svc AccountService
	db  *gorm.DB
	log *zap.Logger
}

// AccountView is the wire form of an account. Tokens are always masked.
type AccountView struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	SkinURL      string    `json:"skin_url,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expires      time.Time `json:"expires"`
	Active       bool      `json:"active"`
	Offline      bool      `json:"offline"`
	Valid        bool      `json:"valid"`
}

func newAccountView(c credentials.Credentials, now time.Time) AccountView {
	return AccountView{
		ID:           c.ID().String(),
		Username:     c.Profile.Name,
		SkinURL:      c.Profile.SkinURL,
		AccessToken:  MaskToken(c.AccessToken),
		RefreshToken: MaskToken(c.RefreshToken),
		Expires:      c.Expires,
		Active:       c.Active,
		Offline:      c.Offline(),
		Valid:        c.Expires.After(now),
	}
}

// MaskToken keeps the first and last four characters of long tokens.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// BeginLogin handles POST /api/login/begin
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	flow, err := h.svc.BeginLogin(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

type finishRequest struct {
	Code string     `json:"code"`
	Flow login.Flow `json:"flow"`
}

// FinishLogin handles POST /api/login/finish
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Flow.ID == uuid.Nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "flow is required")
		return
	}

	creds, err := h.svc.FinishLogin(r.Context(), req.Code, req.Flow)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(*creds, time.Now()))
}

// LoginStatus handles GET /api/login/{id}
func (h *Handler) LoginStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	state, found := h.svc.LoginStatus(id)
	if !found {
		writeErrorMessage(w, http.StatusNotFound, "not_found", "unknown login flow")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "state": state})
}

// ListAccounts handles GET /api/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	now := time.Now()
	views := make([]AccountView, 0, len(all))
	for _, c := range all {
		views = append(views, newAccountView(c, now))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": views,
		"count":    len(views),
	})
}

// GetDefault handles GET /api/accounts/default. The id is null when no
// account is stored.
func (h *Handler) GetDefault(w http.ResponseWriter, r *http.Request) {
	id, ok, err := h.svc.GetDefaultUser(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body struct {
		ID *uuid.UUID `json:"id"`
	}
	if ok {
		body.ID = &id
	}
	writeJSON(w, http.StatusOK, body)
}

// SetDefault handles POST /api/accounts/{id}/default
func (h *Handler) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.svc.SetDefaultUser(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RemoveAccount handles DELETE /api/accounts/{id}. Unknown ids succeed.
func (h *Handler) RemoveAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveUser(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateOffline handles POST /api/accounts/offline
func (h *Handler) CreateOffline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	creds, err := h.svc.CreateOfflineCredentials(r.Context(), req.Username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAccountView(*creds, time.Now()))
}

// RegenerateAPIKey handles POST /api/config/apikey/regenerate. The new key is
// returned once; the caller must use it for every later request.
func (h *Handler) RegenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := db.RegenerateAPIKey(h.db, h.log)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_key": key})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "malformed account id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	log := logging.FromContext(r.Context(), h.log)
	if status >= http.StatusInternalServerError {
		log.Error("❌ Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Info("Request rejected", zap.Int("status", status), zap.String("type", kind), zap.Error(err))
	}
	writeErrorMessage(w, status, kind, err.Error())
}

func classify(err error) (int, string) {
	var flowErr *login.FlowError
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, login.ErrFlowExpired):
		return http.StatusGone, "flow_expired"
	case errors.As(err, &flowErr):
		return http.StatusBadRequest, "flow_error"
	case errors.Is(err, login.ErrProvider):
		return http.StatusBadGateway, "provider_error"
	case errors.Is(err, accounts.ErrInvalidUsername):
		return http.StatusBadRequest, "invalid_username"
	default:
		return http.StatusInternalServerError, "store_error"
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"message": message, "type": kind},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
