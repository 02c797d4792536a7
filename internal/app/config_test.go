package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/farmlink/internal/ledger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/farmlink")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 3, cfg.DBTxMaxRetries)
	assert.Equal(t, 10*time.Second, cfg.FarmerLockTTL)
	assert.Equal(t, 168*time.Hour, cfg.IdempotencyRetention)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("DB_TX_MAX_RETRIES", "0")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "DB_TX_MAX_RETRIES")

	t.Setenv("DB_TX_MAX_RETRIES", "2")
	t.Setenv("FARMER_LOCK_TTL", "0s")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "FARMER_LOCK_TTL")
}

func TestRouterHealthAndActorGuard(t *testing.T) {
	h := NewRouter(RouterParams{
		Config:        &Config{RateLimitPerMinute: 0},
		LedgerHandler: ledger.NewHandler(nil, nil),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ledger", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	limited := RateLimit(&Config{RateLimitPerMinute: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/settlement", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newLogger(&Config{AppEnv: "staging", LogFormat: "json", LogLevel: "warn"}, buf)

	logger.Info("dropped")
	require.Zero(t, buf.Len())

	logger.Warn("kept", "settlement", "STL_20240101_0001")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "staging", entry["env"])
	assert.Equal(t, "STL_20240101_0001", entry["settlement"])
}
