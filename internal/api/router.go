// Package api exposes account management to the launcher UI over a local
// HTTP listener.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/api/middleware"
	"github.com/pysugar/launcher-accounts/internal/auth/login"
	"github.com/pysugar/launcher-accounts/internal/credentials"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountService is the subset of accounts.Service the API needs.
type AccountService interface {
	BeginLogin(ctx context.Context) (login.Flow, error)
	FinishLogin(ctx context.Context, code string, flow login.Flow) (*credentials.Credentials, error)
	LoginStatus(id uuid.UUID) (login.State, bool)
	GetDefaultUser(ctx context.Context) (uuid.UUID, bool, error)
	SetDefaultUser(ctx context.Context, id uuid.UUID) error
	RemoveUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context) ([]credentials.Credentials, error)
	CreateOfflineCredentials(ctx context.Context, username string) (*credentials.Credentials, error)
}

// NewRouter builds the control API. Every /api route requires the local API key.
func NewRouter(svc AccountService, database *gorm.DB, log *zap.Logger) http.Handler {
	h := &Handler{svc: svc, db: database, log: log.Named("api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(h.log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(database))

		r.Post("/login/begin", h.BeginLogin)
		r.Post("/login/finish", h.FinishLogin)
		r.Get("/login/{id}", h.LoginStatus)

		r.Get("/accounts", h.ListAccounts)
		r.Get("/accounts/default", h.GetDefault)
		r.Post("/accounts/offline", h.CreateOffline)
		r.Post("/accounts/{id}/default", h.SetDefault)
		r.Delete("/accounts/{id}", h.RemoveAccount)

		r.Post("/config/apikey/regenerate", h.RegenerateAPIKey)
	})
	return r
}
