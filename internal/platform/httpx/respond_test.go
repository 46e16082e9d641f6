package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.NewError(shared.ErrReferentialIntegrity, "part not found"), http.StatusNotFound},
		{fmt.Errorf("qty: %w", shared.ErrValidation), http.StatusUnprocessableEntity},
		{shared.ErrInvalidStateTransition, http.StatusConflict},
		{fmt.Errorf("part 3: %w", shared.ErrLockTimeout), http.StatusServiceUnavailable},
		{shared.NewError(shared.ErrIntegrity, "chain broken"), http.StatusInternalServerError},
		{ErrMalformedRequest, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
	}
}

func TestRespondErrorLockTimeoutSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.ErrLockTimeout)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestValidatorBindDecimal(t *testing.T) {
	type payload struct {
		Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
		Note     string          `json:"note" validate:"max=5"`
	}
	v := NewValidator()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":"2.5","note":"ok"}`))
	var ok payload
	require.True(t, v.Bind(rec, req, &ok))
	require.True(t, ok.Quantity.Equal(decimal.RequireFromString("2.5")))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":"0","note":"too long"}`))
	var bad payload
	require.False(t, v.Bind(rec, req, &bad))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "gt", body.Fields["quantity"])
	require.Equal(t, "max", body.Fields["note"])
}

func TestValidatorDecimalScale(t *testing.T) {
	type item struct {
		Change decimal.Decimal  `json:"change" validate:"dscale=4"`
		Cost   *decimal.Decimal `json:"cost" validate:"omitempty,dscale=6"`
	}
	type payload struct {
		Quantity decimal.Decimal `json:"quantity" validate:"gt=0,dscale=4"`
		Items    []item          `json:"items" validate:"dive"`
	}
	v := NewValidator()
	bind := func(body string) (*httptest.ResponseRecorder, bool) {
		rec := httptest.NewRecorder()
		var p payload
		return rec, v.Bind(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), &p)
	}

	_, ok := bind(`{"quantity":"1.2500000","items":[{"change":"-0.0001","cost":"2.123456"},{"change":"3"}]}`)
	require.True(t, ok)

	rec, ok := bind(`{"quantity":"0.00001","items":[]}`)
	require.False(t, ok)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), `"quantity":"dscale"`)

	rec, ok = bind(`{"quantity":"1","items":[{"change":"1","cost":"0.0000001"}]}`)
	require.False(t, ok)
	require.Contains(t, rec.Body.String(), `"cost":"dscale"`)
}
