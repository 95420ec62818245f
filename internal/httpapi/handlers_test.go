package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/metrics"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
)

type testAPI struct {
	handler  http.Handler
	repo     *memory.Store
	verifier *IdentityVerifier
}

func seededRepo() *memory.Store {
	repo := memory.New()
	repo.PutLocation(domain.Location{ID: "L1", Name: "Centro", Status: domain.StatusActive})
	repo.PutLocation(domain.Location{ID: "L2", Name: "Norte", Status: domain.StatusActive})
	repo.PutProduct(domain.Product{
		ID: "X", Name: "Producto X",
		Cost: decimal.NewFromInt(10), VATPct: decimal.NewFromInt(21), DefaultMarginPct: decimal.NewFromInt(30),
		Status: domain.StatusActive,
	})
	repo.PutStock(domain.LocationStock{ProductID: "X", LocationID: "L1", Quantity: 5})
	repo.PutStock(domain.LocationStock{ProductID: "X", LocationID: "L2", Quantity: 20})
	return repo
}

// newTestAPI builds the full router over an in-memory store so handler tests
// exercise the complete request path.
func newTestAPI(t *testing.T, repo store.Repository, opts Options) testAPI {
	t.Helper()

	mem := seededRepo()
	if repo == nil {
		repo = mem
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(repo, service.Options{Logger: logger})
	verifier := NewIdentityVerifier(testSecret)
	opts.Logger = logger

	return testAPI{handler: New(svc, verifier, opts).Handler(), repo: mem, verifier: verifier}
}

func (a testAPI) token(t *testing.T, userID string, role domain.Role, location string) string {
	t.Helper()
	token, err := a.verifier.Sign(domain.Identity{UserID: userID, Role: role, LocationID: location}, time.Hour)
	require.NoError(t, err)
	return token
}

func (a testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body), "body: %s", rec.Body.String())
	return body
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t, nil, Options{})

	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil, Options{})
	token := api.token(t, "S", domain.RoleSeller, "L1")

	rec := api.do(t, http.MethodPost, "/api/v1/cash-sessions", token, map[string]any{"openingFloat": "100.00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decodeBody(t, rec)
	assert.Equal(t, "100.00", opened["openingFloat"])
	sessionID := opened["id"].(string)

	rec = api.do(t, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"paymentMethod": "CASH",
		"cashTendered":  "20",
		"lines":         []map[string]any{{"productId": "X", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody(t, rec)
	assert.Equal(t, "15.73", sale["total"])
	assert.Equal(t, "4.27", sale["change"])
	saleID := sale["id"].(string)

	rec = api.do(t, http.MethodGet, "/api/v1/sales/"+saleID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "COMPLETED", decodeBody(t, rec)["state"])

	rec = api.do(t, http.MethodGet, "/api/v1/cash-sessions/current", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody(t, rec)
	assert.Equal(t, true, status["open"])
	assert.Equal(t, "15.73", status["totals"].(map[string]any)["cash"])

	rec = api.do(t, http.MethodPut, "/api/v1/sales/"+saleID+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decodeBody(t, rec)["state"])
	assert.Equal(t, 5, api.repo.Stock("X", "L1"))

	rec = api.do(t, http.MethodPut, "/api/v1/sales/"+saleID+"/cancel", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AlreadyCancelled", decodeBody(t, rec)["code"])

	rec = api.do(t, http.MethodPost, "/api/v1/cash-sessions/"+sessionID+"/close", token, map[string]any{"closingAmount": "100.00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decodeBody(t, rec)
	assert.Equal(t, "CLOSED", closed["state"])
	assert.Equal(t, "0.00", closed["variance"])
	assert.Equal(t, "100.00", closed["expectedAmount"])

	rec = api.do(t, http.MethodGet, "/api/v1/cash-sessions/current", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["open"])
}

func TestCreateSaleWithoutSessionIsForbidden(t *testing.T) {
	api := newTestAPI(t, nil, Options{})
	token := api.token(t, "S", domain.RoleSeller, "L1")

	rec := api.do(t, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"paymentMethod": "CASH",
		"cashTendered":  "20",
		"lines":         []map[string]any{{"productId": "X", "quantity": 1}},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NoOpenSession", decodeBody(t, rec)["code"])
}

func TestInsufficientStockResponseCarriesCandidates(t *testing.T) {
	api := newTestAPI(t, nil, Options{})
	token := api.token(t, "S", domain.RoleSeller, "L1")
	rec := api.do(t, http.MethodPost, "/api/v1/cash-sessions", token, map[string]any{"openingFloat": 0})
	require.Equal(t, http.StatusCreated, rec.Code)

	sale := map[string]any{
		"paymentMethod": "CASH",
		"cashTendered":  "200",
		"lines":         []map[string]any{{"productId": "X", "quantity": 8}},
	}
	rec = api.do(t, http.MethodPost, "/api/v1/sales", token, sale)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "InsufficientStockSuggestRemote", body["code"])
	candidates := body["candidates"].([]any)
	require.Len(t, candidates, 1)
	assert.Equal(t, "L2", candidates[0].(map[string]any)["locationId"])

	sale["originLocationId"] = "L2"
	rec = api.do(t, http.MethodPost, "/api/v1/sales", token, sale)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["isRemote"])
	assert.Equal(t, 12, api.repo.Stock("X", "L2"))
}

func TestDoubleOpenRejected(t *testing.T) {
	api := newTestAPI(t, nil, Options{})
	token := api.token(t, "S", domain.RoleSeller, "L1")

	rec := api.do(t, http.MethodPost, "/api/v1/cash-sessions", token, map[string]any{"openingFloat": 10})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/v1/cash-sessions", token, map[string]any{"openingFloat": 10})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SessionAlreadyOpen", decodeBody(t, rec)["code"])
}

func TestValidationAndNotFound(t *testing.T) {
	api := newTestAPI(t, nil, Options{})
	token := api.token(t, "S", domain.RoleSeller, "L1")

	rec := api.do(t, http.MethodPost, "/api/v1/cash-sessions", token, `{"openingFloat": 1, "drawer": 2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sales", token, map[string]any{"paymentMethod": "CASH", "lines": []any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidRequest", decodeBody(t, rec)["code"])

	rec = api.do(t, http.MethodGet, "/api/v1/sales/sale_missing", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SaleNotFound", decodeBody(t, rec)["code"])

	rec = api.do(t, http.MethodPost, "/api/v1/cash-sessions/cs_missing/close", token, map[string]any{"closingAmount": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpointExposesCollectors(t *testing.T) {
	m := metrics.New(nil)
	api := newTestAPI(t, nil, Options{Metrics: m})

	api.do(t, http.MethodGet, "/healthz", "", nil)
	rec := api.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "retailpos_http_request_duration_seconds")
}
