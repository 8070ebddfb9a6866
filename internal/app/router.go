package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/materials"
	"github.com/meridian-erp/meridian-erp/internal/payments"
	"github.com/meridian-erp/meridian-erp/internal/projects"
	"github.com/meridian-erp/meridian-erp/internal/reconciliation"
	"github.com/meridian-erp/meridian-erp/internal/transactions"
	"github.com/meridian-erp/meridian-erp/internal/users"
	"github.com/meridian-erp/meridian-erp/internal/yearend"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Tokens users.TokenVerifier

	UsersHandler          *users.Handler
	AccountsHandler       *accounts.Handler
	FiscalHandler         *fiscal.Handler
	TransactionsHandler   *transactions.Handler
	ReconciliationHandler *reconciliation.Handler
	YearEndHandler        *yearend.Handler
	MaterialsHandler      *materials.Handler
	ProjectsHandler       *projects.Handler
	PaymentsHandler       *payments.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
		Tokens: params.Tokens,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.UsersHandler.MountRoutes)
	r.Route("/accounts", params.AccountsHandler.MountRoutes)
	r.Route("/fiscal", params.FiscalHandler.MountRoutes)
	r.Route("/transactions", params.TransactionsHandler.MountRoutes)
	r.Route("/reconciliation", params.ReconciliationHandler.MountRoutes)
	r.Route("/yearend", params.YearEndHandler.MountRoutes)
	r.Route("/materials", params.MaterialsHandler.MountRoutes)
	r.Route("/projects", params.ProjectsHandler.MountRoutes)
	r.Route("/payments", params.PaymentsHandler.MountRoutes)

	return r
}
