package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Jay-S9/backend-foundation/internal/infra/memory"
	"github.com/Jay-S9/backend-foundation/internal/ledger"
	"github.com/Jay-S9/backend-foundation/internal/transport/httpapi"
	"github.com/Jay-S9/backend-foundation/internal/transport/httpapi/handler"
	"github.com/Jay-S9/backend-foundation/internal/transport/httpapi/middleware"
	"github.com/Jay-S9/backend-foundation/pkg/config"
	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

const (
	adminKey   = "admin-secret"
	serviceKey = "service-secret"
)

type testServer struct {
	router http.Handler
}

func hash(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func setupRouter(t *testing.T, checks map[string]handler.Checker, rps float64, burst int) *testServer {
	t.Helper()

	log := logger.Discard()
	repo := memory.NewLedgerRepository()
	svc := ledger.NewService(repo, log)

	auth, err := middleware.NewAPIKeyAuth([]config.APIKey{
		{Role: middleware.RoleAdmin, Hash: hash(t, adminKey)},
		{Role: middleware.RoleService, Hash: hash(t, serviceKey)},
	}, log)
	require.NoError(t, err)

	if checks == nil {
		checks = map[string]handler.Checker{"storage": repo}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := httpapi.NewRouter(ctx, httpapi.Config{
		Logger:         log,
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
		AccountHandler: handler.NewAccountHandler(svc, log),
		HealthHandler:  handler.NewHealthHandler(checks),
		Auth:           auth,
	})
	return &testServer{router: r}
}

func (s *testServer) do(t *testing.T, method, path, key string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(middleware.APIKeyHeader, key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func errorCode(resp map[string]any) string {
	e, _ := resp["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestRouter_EndToEndScenario(t *testing.T) {
	s := setupRouter(t, nil, 0, 0)

	w, resp := s.do(t, http.MethodPost, "/accounts", adminKey, map[string]any{
		"account_id": "acct-1", "initial_balance": "100",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "acct-1", resp["account_id"])
	assert.Equal(t, "100", resp["balance"])
	assert.Equal(t, "active", resp["state"])

	w, resp = s.do(t, http.MethodPost, "/accounts/acct-1/deposit", adminKey, map[string]any{
		"amount": 50, "idempotency_key": "k1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "150", resp["balance"])

	w, resp = s.do(t, http.MethodGet, "/accounts/acct-1/transactions", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	txs := resp["transactions"].([]any)
	require.Len(t, txs, 1)
	entry := txs[0].(map[string]any)
	assert.Equal(t, "DEPOSIT", entry["action"])
	assert.Equal(t, "50", entry["amount"])
	assert.Equal(t, "150", entry["balance_after"])
	assert.NotEmpty(t, entry["timestamp"])

	w, resp = s.do(t, http.MethodPost, "/accounts/acct-1/deposit", adminKey, map[string]any{
		"amount": 50, "idempotency_key": "k1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", errorCode(resp))

	w, resp = s.do(t, http.MethodPost, "/accounts/acct-1/withdraw", adminKey, map[string]any{"amount": "200"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", errorCode(resp))

	w, resp = s.do(t, http.MethodGet, "/accounts/acct-1", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "150", resp["balance"])

	w, _ = s.do(t, http.MethodPost, "/accounts/acct-1/freeze", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = s.do(t, http.MethodPost, "/accounts/acct-1/withdraw", adminKey, map[string]any{"amount": "10"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ACCOUNT_NOT_ACTIVE", errorCode(resp))

	w, resp = s.do(t, http.MethodPost, "/accounts/acct-1/unfreeze", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", resp["state"])

	w, resp = s.do(t, http.MethodPost, "/accounts/acct-1/withdraw", adminKey, map[string]any{"amount": "10"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "140", resp["balance"])
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := setupRouter(t, nil, 0, 0)
	w, _ := s.do(t, http.MethodPost, "/accounts", adminKey, map[string]any{"account_id": "acct-1", "initial_balance": 10})
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown account", http.MethodGet, "/accounts/missing", nil, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{"duplicate account", http.MethodPost, "/accounts", map[string]any{"account_id": "acct-1"}, http.StatusConflict, "ACCOUNT_EXISTS"},
		{"negative initial balance", http.MethodPost, "/accounts", map[string]any{"account_id": "acct-2", "initial_balance": "-1"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"zero amount", http.MethodPost, "/accounts/acct-1/deposit", map[string]any{"amount": 0, "idempotency_key": "z"}, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"too precise initial balance", http.MethodPost, "/accounts", map[string]any{"account_id": "acct-3", "initial_balance": "1.23456"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"initial balance too large", http.MethodPost, "/accounts", map[string]any{"account_id": "acct-4", "initial_balance": "1000000000000000000000"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"amount too large", http.MethodPost, "/accounts/acct-1/deposit", map[string]any{"amount": "1000000000000000000000", "idempotency_key": "big"}, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"too precise", http.MethodPost, "/accounts/acct-1/deposit", map[string]any{"amount": "1.00001", "idempotency_key": "p"}, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"malformed amount", http.MethodPost, "/accounts/acct-1/withdraw", map[string]any{"amount": "ten"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing amount", http.MethodPost, "/accounts/acct-1/withdraw", map[string]any{}, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing deposit key", http.MethodPost, "/accounts/acct-1/deposit", map[string]any{"amount": 1}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown field", http.MethodPost, "/accounts/acct-1/deposit", map[string]any{"amount": 1, "note": "x"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"invalid transition", http.MethodPost, "/accounts/acct-1/unfreeze", nil, http.StatusBadRequest, "INVALID_STATE_TRANSITION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := s.do(t, tt.method, tt.path, adminKey, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(resp))
		})
	}
}

func TestRouter_IdempotencyKeyHeader(t *testing.T) {
	s := setupRouter(t, nil, 0, 0)
	s.do(t, http.MethodPost, "/accounts", serviceKey, map[string]any{"account_id": "acct-1"})

	w, resp := s.do(t, http.MethodPost, "/accounts/acct-1/deposit", serviceKey,
		map[string]any{"amount": "5.25"}, handler.IdempotencyKeyHeader, "h1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "5.25", resp["balance"])

	w, resp = s.do(t, http.MethodPost, "/accounts/acct-1/deposit", serviceKey,
		map[string]any{"amount": "5.25"}, handler.IdempotencyKeyHeader, "h1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", errorCode(resp))
}

func TestRouter_IdempotencyKeyWhitespace(t *testing.T) {
	s := setupRouter(t, nil, 0, 0)
	s.do(t, http.MethodPost, "/accounts", serviceKey, map[string]any{"account_id": "acct-1"})

	w, _ := s.do(t, http.MethodPost, "/accounts/acct-1/deposit", serviceKey,
		map[string]any{"amount": "1", "idempotency_key": "k"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp := s.do(t, http.MethodPost, "/accounts/acct-1/deposit", serviceKey,
		map[string]any{"amount": "1", "idempotency_key": " k "})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", errorCode(resp))

	// a blank body key falls back to the header
	w, resp = s.do(t, http.MethodPost, "/accounts/acct-1/deposit", serviceKey,
		map[string]any{"amount": "1", "idempotency_key": "  "}, handler.IdempotencyKeyHeader, "k")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", errorCode(resp))

	w, resp = s.do(t, http.MethodGet, "/accounts/acct-1", serviceKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", resp["balance"])
}

func TestRouter_Authentication(t *testing.T) {
	s := setupRouter(t, nil, 0, 0)

	w, resp := s.do(t, http.MethodGet, "/accounts/acct-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(resp))

	w, _ = s.do(t, http.MethodGet, "/accounts/acct-1", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/accounts", serviceKey, map[string]any{"account_id": "acct-1", "initial_balance": 20})
	require.Equal(t, http.StatusCreated, w.Code)

	for _, path := range []string{"withdraw", "freeze", "unfreeze", "close"} {
		w, resp = s.do(t, http.MethodPost, "/accounts/acct-1/"+path, serviceKey, map[string]any{"amount": 1})
		assert.Equal(t, http.StatusForbidden, w.Code, path)
		assert.Equal(t, "FORBIDDEN", errorCode(resp), path)
	}

	// the service key is cached after its first verification
	w, _ = s.do(t, http.MethodGet, "/accounts/acct-1", serviceKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Health(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		s := setupRouter(t, nil, 0, 0)

		w, resp := s.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", resp["status"])

		w, resp = s.do(t, http.MethodGet, "/health/live", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alive", resp["status"])

		w, resp = s.do(t, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ready", resp["status"])
	})

	t.Run("dependency down", func(t *testing.T) {
		s := setupRouter(t, map[string]handler.Checker{
			"database": handler.CheckerFunc(func(context.Context) error { return errors.New("connection refused") }),
		}, 0, 0)

		w, resp := s.do(t, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "not_ready", resp["status"])
		checks := resp["checks"].(map[string]any)
		assert.Contains(t, checks["database"], "connection refused")
	})
}

func TestRouter_RateLimit(t *testing.T) {
	s := setupRouter(t, nil, 1, 2)

	for i := 0; i < 2; i++ {
		w, _ := s.do(t, http.MethodGet, "/health/live", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, resp := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(resp))

	// rotating forwarding headers does not reset the budget
	w, _ = s.do(t, http.MethodGet, "/health/live", "", nil, "X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	w, _ = s.do(t, http.MethodGet, "/health/live", "", nil, "X-Forwarded-For", "198.51.100.2")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
