package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *memStore) {
	t.Helper()
	svc, store, _ := newTestService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(svc, logger)

	r := chi.NewRouter()
	r.Route("/orders", handler.Routes)
	return r, store
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createViaAPI(t *testing.T, router http.Handler) OrderDocument {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/orders/", baseCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var payload struct {
		Order OrderDocument `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Order
}

func TestHandlerCreateOrder(t *testing.T) {
	t.Run("created with allocated sequence", func(t *testing.T) {
		router, _ := newTestRouter(t)

		doc := createViaAPI(t, router)
		assert.Equal(t, "00000001", doc.Sequence)
		assert.Equal(t, 11900.0, doc.Total)
		assert.Equal(t, int64(7), doc.CreatedBy)
	})

	t.Run("malformed body", func(t *testing.T) {
		router, _ := newTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown customer maps to 404", func(t *testing.T) {
		router, _ := newTestRouter(t)

		req := baseCreateRequest()
		req.CustomerID = 999
		rec := doJSON(t, router, http.MethodPost, "/orders/", req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandlerLifecycle(t *testing.T) {
	t.Run("delete closed order returns stable code", func(t *testing.T) {
		router, _ := newTestRouter(t)
		doc := createViaAPI(t, router)

		rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/close", doc.ID), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/orders/%d", doc.ID), nil)
		require.Equal(t, http.StatusConflict, rec.Code)

		var problem struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
		assert.Equal(t, CodeClosed, problem.Code)
	})

	t.Run("close without lines returns stable code", func(t *testing.T) {
		router, _ := newTestRouter(t)

		req := baseCreateRequest()
		req.Lines = nil
		rec := doJSON(t, router, http.MethodPost, "/orders/", req)
		require.Equal(t, http.StatusCreated, rec.Code)

		var payload struct {
			Order OrderDocument `json:"order"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))

		rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/close", payload.Order.ID), nil)
		require.Equal(t, http.StatusConflict, rec.Code)

		var problem struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
		assert.Equal(t, CodeNoLines, problem.Code)
	})

	t.Run("state tag rides along on reads", func(t *testing.T) {
		router, _ := newTestRouter(t)
		doc := createViaAPI(t, router)

		rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/orders/%d", doc.ID), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var payload struct {
			State DocState `json:"state"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, StateOpen, payload.State)
	})

	t.Run("missing order", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doJSON(t, router, http.MethodGet, "/orders/424242", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandlerList(t *testing.T) {
	router, _ := newTestRouter(t)
	createViaAPI(t, router)
	createViaAPI(t, router)

	rec := doJSON(t, router, http.MethodGet, "/orders/?company_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Total  int `json:"total"`
		Limit  int `json:"limit"`
		Orders []OrderDocument
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 2, payload.Total)
	assert.Equal(t, 50, payload.Limit, "applied default page size is echoed")

	rec = doJSON(t, router, http.MethodGet, "/orders/?company_id=1&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 2, payload.Total)
	assert.Equal(t, 1, payload.Limit)
	assert.Len(t, payload.Orders, 1)

	rec = doJSON(t, router, http.MethodGet, "/orders/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "company_id is required")
}
