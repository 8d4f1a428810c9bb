package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethermail_farm/internal/config"
	"ethermail_farm/internal/engine"
	"ethermail_farm/internal/logbus"
	"ethermail_farm/internal/model"
	"ethermail_farm/internal/store/sqlite"
	"ethermail_farm/internal/taskstore"
)

const testAPIKey = "test-secret"

type fakeRegistrar struct{}

func (fakeRegistrar) Register(_ context.Context, proxy string) (model.CreatedAccount, error) {
	return model.CreatedAccount{
		ID:            "acc-" + proxy,
		WalletAddress: "0x" + proxy,
		Token:         "tok",
	}, nil
}

func newTestServer(t *testing.T) (*Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Config{}
	cfg.Server.APIKey = testAPIKey
	cfg.Server.APIKeyHeader = "X-API-Key"

	tasks := taskstore.New()
	bus := logbus.New(32)
	eng := engine.New(engine.Options{
		Tasks:     tasks,
		Store:     store,
		Bus:       bus,
		Registrar: fakeRegistrar{},
	})
	return New(Options{
		Cfg:    cfg,
		Bus:    bus,
		Store:  store,
		Tasks:  tasks,
		Engine: eng,
	}), store
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthIsOpen(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/accounts", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "no API key provided", decodeBody(t, rec)["error"])
}

func TestWrongAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/accounts", nil, "wrong")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid API key", decodeBody(t, rec)["error"])
}

func TestCreateBatchValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	cases := []struct {
		name string
		body map[string]any
	}{
		{"no proxies", map[string]any{"proxies": []string{}, "count": 1}},
		{"count exceeds proxies", map[string]any{"proxies": []string{"http://p1:8080"}, "count": 2}},
		{"zero count", map[string]any{"proxies": []string{"http://p1:8080"}, "count": 0}},
		{"negative delay", map[string]any{"proxies": []string{"http://p1:8080"}, "count": 1, "delaySeconds": -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/v1/accounts/batch", tc.body, testAPIKey)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeBody(t, rec), "error")
		})
	}
}

func TestCreateBatchAndPoll(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/accounts/batch", map[string]any{
		"proxies": []string{"http://p1:8080", "http://p2:8080"},
		"count":   2,
	}, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)
	taskID, _ := decodeBody(t, rec)["taskId"].(string)
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		rec := doRequest(t, h, http.MethodGet, "/api/v1/tasks/"+taskID, nil, testAPIKey)
		if rec.Code != http.StatusOK {
			return false
		}
		return decodeBody(t, rec)["status"] == string(model.TaskCompleted)
	}, 5*time.Second, 10*time.Millisecond)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/tasks/"+taskID, nil, testAPIKey)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["completed"])
	assert.Equal(t, float64(0), body["failed"])
	results, _ := body["results"].([]any)
	assert.Len(t, results, 2)
}

func TestCreateSingle(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/accounts/single", map[string]any{"proxy": ""}, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/accounts/single", map[string]any{"proxy": "http://p1:8080"}, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)
	taskID, _ := decodeBody(t, rec)["taskId"].(string)
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		rec := doRequest(t, h, http.MethodGet, "/api/v1/tasks/"+taskID, nil, testAPIKey)
		return decodeBody(t, rec)["status"] == string(model.TaskCompleted)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGetTaskNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/tasks/does-not-exist", nil, testAPIKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountsListAndGet(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/accounts", nil, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)
	data, _ := decodeBody(t, rec)["data"].([]any)
	assert.Empty(t, data)

	acc, err := store.InsertAccount(context.Background(), model.Account{
		WalletAddress: "0xabc",
		Email:         "0xabc@ethermail.io",
		Proxy:         "http://p1:8080",
	})
	require.NoError(t, err)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/accounts", nil, testAPIKey)
	data, _ = decodeBody(t, rec)["data"].([]any)
	require.Len(t, data, 1)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/accounts/"+acc.ID, nil, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/accounts/unknown", nil, testAPIKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchEmailsUnknownAddress(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/emails", map[string]any{"address": ""}, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/emails", map[string]any{"address": "nobody@ethermail.io"}, testAPIKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateProxiesInsufficient(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/proxies", map[string]any{"proxies": []string{}}, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for i := 0; i < 3; i++ {
		_, err := store.InsertAccount(context.Background(), model.Account{
			WalletAddress: fmt.Sprintf("0x%d", i),
			Proxy:         "http://old:8080",
		})
		require.NoError(t, err)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/proxies", map[string]any{
		"proxies": []string{"http://new-1:8080"},
	}, testAPIKey)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["valid"])
	assert.Equal(t, float64(3), body["need"])

	// nothing partially applied
	accounts, err := store.ListAccounts(context.Background())
	require.NoError(t, err)
	for _, acc := range accounts {
		assert.Equal(t, "http://old:8080", acc.Proxy)
	}
}

func TestUpdateProxiesAssignsAll(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		_, err := store.InsertAccount(context.Background(), model.Account{
			WalletAddress: fmt.Sprintf("0x%d", i),
			Proxy:         "http://old:8080",
		})
		require.NoError(t, err)
	}

	rec := doRequest(t, h, http.MethodPost, "/api/v1/proxies", map[string]any{
		"proxies": []string{"http://new-1:8080", "http://new-2:8080"},
	}, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["updated"])

	accounts, err := store.ListAccounts(context.Background())
	require.NoError(t, err)
	for _, acc := range accounts {
		assert.NotEqual(t, "http://old:8080", acc.Proxy)
	}
}
