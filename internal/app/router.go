package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/coopfin/coopfin/internal/deposits"
	"github.com/coopfin/coopfin/internal/ledger/accounts"
	"github.com/coopfin/coopfin/internal/ledger/journal"
	"github.com/coopfin/coopfin/internal/ledger/statement"
	"github.com/coopfin/coopfin/internal/loans"
	"github.com/coopfin/coopfin/internal/payroll"
	"github.com/coopfin/coopfin/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AccountsHandler  *accounts.Handler
	JournalHandler   *journal.Handler
	StatementHandler *statement.Handler
	LoansHandler     *loans.Handler
	DepositsHandler  *deposits.Handler
	PayrollHandler   *payroll.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with coopfin defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", params.AccountsHandler.MountRoutes)
		r.Route("/journal", params.JournalHandler.MountRoutes)
		r.Route("/statements", params.StatementHandler.MountRoutes)
		r.Route("/loans", params.LoansHandler.MountRoutes)
		r.Route("/deposits", params.DepositsHandler.MountRoutes)
		r.Route("/payroll", params.PayrollHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
