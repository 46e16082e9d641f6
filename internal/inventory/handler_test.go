package inventory_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/inventory"
)

func newTestRouter(t *testing.T) (http.Handler, fixture) {
	f := newFixture(t, catalog.CostingFIFO)
	h := inventory.NewHandler(slog.Default(), f.svc)
	r := chi.NewRouter()
	r.Route("/parts", h.MountPartRoutes)
	r.Route("/jobs", h.MountJobRoutes)
	return r, f
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerReceiveConsumeAndCOGS(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodPost, "/parts/1/receipts", `{"quantity":"5","unit_cost":"10","received_at":"2024-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(router, http.MethodPost, "/parts/1/receipts", `{"quantity":"5","unit_cost":"12","received_at":"2024-01-02T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	job := uuid.New()
	rec = do(router, http.MethodPost, "/parts/1/consumptions", `{"quantity":"7","job_ref":"`+job.String()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res inventory.Consumption
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.TotalCost.Equal(d("74")))

	rec = do(router, http.MethodGet, "/jobs/"+job.String()+"/cogs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cogs inventory.JobCOGS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cogs))
	require.True(t, cogs.TotalCost.Equal(d("74")))

	rec = do(router, http.MethodGet, "/parts/1/stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var level inventory.StockLevel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &level))
	require.True(t, level.Quantity.Equal(d("3")))

	rec = do(router, http.MethodGet, "/parts/1/history?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []inventory.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 3)
}

func TestHandlerErrorMapping(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodPost, "/parts/1/consumptions", `{"quantity":"1","job_ref":"`+uuid.NewString()+`"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(router, http.MethodPost, "/parts/1/receipts", `{"quantity":"0","unit_cost":"1"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(router, http.MethodGet, "/parts/99/stock", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodGet, "/jobs/not-a-uuid/cogs", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/parts/1/opening-balance", `{"quantity":"4","unit_cost":"2"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(router, http.MethodPost, "/parts/1/opening-balance", `{"quantity":"4","unit_cost":"2"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(router, http.MethodGet, "/parts/1/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok":true`)
}
