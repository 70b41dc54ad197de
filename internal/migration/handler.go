package migration

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/orders"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Enqueuer hands a migration off to the background worker.
type Enqueuer interface {
	EnqueueMigration(ctx context.Context, intakeOrderID int64, params MigrateParams) (string, error)
}

// Handler exposes the migration API: synchronous runs and worker hand-offs.
type Handler struct {
	reconciler *Reconciler
	enqueuer   Enqueuer
	fallback   MigrateParams
	logger     *slog.Logger
}

// NewHandler constructs the HTTP handler. fallback supplies the ledger
// destination when the request body omits one.
func NewHandler(reconciler *Reconciler, enqueuer Enqueuer, fallback MigrateParams, logger *slog.Logger) *Handler {
	return &Handler{reconciler: reconciler, enqueuer: enqueuer, fallback: fallback, logger: logger}
}

// Routes mounts the migration endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/{intakeOrderID}", h.migrate)
	r.Post("/{intakeOrderID}/enqueue", h.enqueue)
}

func (h *Handler) migrate(w http.ResponseWriter, r *http.Request) {
	id, params, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	result, err := h.reconciler.Migrate(r.Context(), id, params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	id, params, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	taskID, err := h.enqueuer.EnqueueMigration(r.Context(), id, params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{
		"task_id":         taskID,
		"intake_order_id": id,
	})
}

func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request) (int64, MigrateParams, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "intakeOrderID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid path parameter",
			"intakeOrderID must be a positive integer")
		return 0, MigrateParams{}, false
	}

	params := h.fallback
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &params); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
			return 0, MigrateParams{}, false
		}
	}
	if params.CompanyID <= 0 {
		params.CompanyID = h.fallback.CompanyID
	}
	if params.Series == "" {
		params.Series = h.fallback.Series
	}
	if params.BranchID <= 0 {
		params.BranchID = h.fallback.BranchID
	}
	return id, params, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var seqErr *orders.SequenceConflictError
	switch {
	case errors.Is(err, ErrAlreadySynced):
		httpx.ProblemCode(w, http.StatusConflict, "Already synced", err.Error(),
			"ALREADY_SYNCED", nil)
	case errors.As(err, &seqErr):
		httpx.ProblemCode(w, http.StatusConflict, "Sequence conflict",
			seqErr.Error(), "SEQUENCE_CONFLICT", map[string]any{
				"company_id": seqErr.CompanyID,
				"series":     seqErr.Series,
				"branch_id":  seqErr.BranchID,
				"sequence":   seqErr.Sequence,
			})
	case errors.Is(err, orders.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, orders.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, ErrOrphaned):
		httpx.ProblemCode(w, http.StatusInternalServerError, "Ledger document orphaned",
			err.Error(), "ORPHANED_DOCUMENT", nil)
	case errors.Is(err, ErrLinkedOpen):
		httpx.ProblemCode(w, http.StatusInternalServerError, "Migrated document left open",
			err.Error(), "DOCUMENT_LEFT_OPEN", nil)
	case errors.Is(err, ErrUpstream):
		httpx.Problem(w, http.StatusBadGateway, "Intake store unavailable", err.Error())
	default:
		h.logger.Error("migration request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "unexpected error")
	}
}
