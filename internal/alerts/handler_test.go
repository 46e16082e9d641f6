package alerts

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHandlerListAndResolve(t *testing.T) {
	h := newAlertHarness(t)
	h.receive(t, 1, "1", nil)

	router := chi.NewRouter()
	router.Route("/alerts", NewHandler(slog.Default(), h.svc).MountRoutes)
	call := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	rec := call(http.MethodGet, "/alerts/?resolved=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	require.Equal(t, http.StatusBadRequest, call(http.MethodGet, "/alerts/?resolved=maybe", "").Code)
	require.Equal(t, http.StatusOK, call(http.MethodPost, "/alerts/1/resolve", `{"note":"ordered"}`).Code)
	require.Equal(t, http.StatusConflict, call(http.MethodPost, "/alerts/1/resolve", `{}`).Code)
	require.Equal(t, http.StatusOK, call(http.MethodPost, "/alerts/1/unresolve", "").Code)
	require.Equal(t, http.StatusNotFound, call(http.MethodPost, "/alerts/9/unresolve", "").Code)

	rec = call(http.MethodPost, "/alerts/sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"parts":2`)
}
