package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes the order document API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the order endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{orderID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/close", h.close)
		r.Post("/reopen", h.reopen)
		r.Post("/void", h.void)
		r.Post("/lines", h.addLine)
		r.Put("/lines/{lineID}", h.updateLine)
		r.Delete("/lines/{lineID}", h.removeLine)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	doc, err := h.service.CreateOrder(r.Context(), req, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, orderResponse(doc))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	doc, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(doc))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}
	docs, total, err := h.service.ListOrders(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders": docs,
		"total":  total,
		"limit":  req.Limit,
		"offset": req.Offset,
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req UpdateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	doc, err := h.service.UpdateOrder(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(doc))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CloseOrder)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ReopenOrder)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.VoidOrder)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (*OrderDocument, error)) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	doc, err := fn(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(doc))
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req CreateOrderLineReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	doc, err := h.service.AddLine(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(doc))
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req CreateOrderLineReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	doc, err := h.service.UpdateLine(r.Context(), orderID, lineID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(doc))
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	doc, err := h.service.RemoveLine(r.Context(), orderID, lineID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(doc))
}

// orderResponse decorates the document with its derived state tag.
func orderResponse(doc *OrderDocument) map[string]any {
	return map[string]any{
		"order": doc,
		"state": StateOf(doc),
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var stateErr *StateError
	var seqErr *SequenceConflictError
	switch {
	case errors.As(err, &stateErr):
		httpx.ProblemCode(w, http.StatusConflict, "Invalid document state",
			stateErr.Error(), stateErr.Code, map[string]any{"state": stateErr.State})
	case errors.As(err, &seqErr):
		httpx.ProblemCode(w, http.StatusConflict, "Sequence conflict",
			seqErr.Error(), "SEQUENCE_CONFLICT", map[string]any{
				"company_id": seqErr.CompanyID,
				"series":     seqErr.Series,
				"branch_id":  seqErr.BranchID,
				"sequence":   seqErr.Sequence,
			})
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
	default:
		h.logger.Error("order request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "unexpected error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid path parameter", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// actorID reads the authenticated user from the gateway-injected header.
// Zero means an unattributed system call.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	return id
}

func parseListRequest(r *http.Request) (ListOrdersRequest, error) {
	q := r.URL.Query()
	var req ListOrdersRequest

	companyID, err := strconv.ParseInt(q.Get("company_id"), 10, 64)
	if err != nil {
		return req, errors.New("company_id is required")
	}
	req.CompanyID = companyID

	if v := q.Get("series"); v != "" {
		req.Series = &v
	}
	if v := q.Get("branch_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, errors.New("branch_id must be an integer")
		}
		req.BranchID = &id
	}
	if v := q.Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, errors.New("customer_id must be an integer")
		}
		req.CustomerID = &id
	}
	if v := q.Get("state"); v != "" {
		state := DocState(v)
		switch state {
		case StateOpen, StateClosed, StateVoided, StateInvoiced:
			req.State = &state
		default:
			return req, errors.New("state must be one of OPEN, CLOSED, VOIDED, INVOICED")
		}
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return req, errors.New("date_from must be YYYY-MM-DD")
		}
		req.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return req, errors.New("date_to must be YYYY-MM-DD")
		}
		req.DateTo = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("limit must be an integer")
		}
		req.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("offset must be an integer")
		}
		req.Offset = n
	}
	// Default here so the response echoes the page size actually applied.
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	return req, nil
}
