package ledger

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the ledger endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/", h.handleGetLedger)
	r.Get("/balance-series", h.handleBalanceSeries)
	r.Get("/catalogs", h.handleCatalogs)

	r.Post("/deliveries", h.handleCreateDelivery)
	r.Put("/deliveries/{id}", h.handleUpdateDelivery)
	r.Delete("/deliveries/{id}", h.handleDeleteDelivery)

	r.Post("/deposits", h.handleCreateDeposit)
	r.Put("/deposits/{id}", h.handleUpdateDeposit)
	r.Delete("/deposits/{id}", h.handleDeleteDeposit)

	r.Post("/debit-notes", h.handleCreateDebitNote)
	r.Delete("/debit-notes/{id}", h.handleDeleteDebitNote)

	r.Put("/settings/initial-balance", h.handleSetInitialBalance)

	r.Post("/import", h.handleImport)
	r.Post("/import.xlsx", h.handleImportWorkbook)

	r.Get("/reports/weekly", h.handleWeeklyReport)
	r.Get("/reports/monthly", h.handleMonthlyReport)
	r.Get("/reports/suppliers", h.handleSupplierTotals)

	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/export.xlsx", h.handleExport)
	})
}
