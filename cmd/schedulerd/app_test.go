package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebench/scheduler/internal/config"
)

func testConfig(addr string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "error"},
		Redis:  config.RedisConfig{URL: "redis://" + addr},
		Queue:  config.QueueConfig{Name: "test_tasks", ResultTTL: time.Hour},
		Pool: config.PoolConfig{
			NumWorkers:      2,
			PollInterval:    time.Second,
			JobTimeout:      time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

func newTestApplication(t *testing.T, cfg *config.Config) *application {
	t.Helper()

	mr := miniredis.RunT(t)
	if cfg == nil {
		cfg = testConfig(mr.Addr())
	} else {
		cfg.Redis.URL = "redis://" + mr.Addr()
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := newApplication(cfg, logger, rdb)
	require.NoError(t, err)
	return app
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApplication(t, nil)
	router := app.setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAPIEndToEnd(t *testing.T) {
	app := newTestApplication(t, nil)
	router := app.setupRouter()

	body, err := json.Marshal(map[string]interface{}{
		"task_spec": map[string]interface{}{
			"id":          "task-1",
			"category":    "coding",
			"difficulty":  "hard",
			"instruction": "implement a trie",
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/queue/stats", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Queue struct {
			PendingJobs int64 `json:"pending_jobs"`
		} `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Queue.PendingJobs)
}

func TestAuthEnabledWhenSecretConfigured(t *testing.T) {
	secret := "thisisasecretkeythatis32charslong!!"
	cfg := testConfig("")
	cfg.Auth.JWTSecret = secret

	app := newTestApplication(t, cfg)
	router := app.setupRouter()

	// Unauthenticated requests are rejected.
	req := httptest.NewRequest(http.MethodGet, "/api/queue/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays public.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A signed token grants access.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "test-client",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/queue/stats", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
