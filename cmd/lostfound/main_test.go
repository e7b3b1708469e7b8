package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"campus-lostfound/internal/config"
	"campus-lostfound/internal/database"
	"campus-lostfound/internal/middleware"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server:         config.DefaultConfig(),
		Database:       &config.DatabaseConfig{Type: config.DBMemory},
		Messaging:      &config.MessagingConfig{UploadDir: t.TempDir(), MaxImageBytes: 1 << 20, RecallWindow: 2 * time.Minute},
		JWTSecret:      "test-secret",
		AllowedOrigins: []string{"*"},
	}
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--env-file", "prod.env", "--addr", ":9999", "--moderation-terms", "terms.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "prod.env", opts.envFile)
	assert.Equal(t, ":9999", opts.addr)
	assert.Equal(t, "terms.yaml", opts.moderationTerms)

	_, err = parseFlags([]string{"serve"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestOpenStore(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	mem, err := openStore(ctx, &config.DatabaseConfig{Type: config.DBMemory}, logger)
	require.NoError(t, err)
	assert.IsType(t, &database.MemoryDB{}, mem)

	lite, err := openStore(ctx, &config.DatabaseConfig{
		Type:       config.DBSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "nested", "lostfound.db"),
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &database.SQLDB{}, lite)
	require.NoError(t, lite.Close(ctx))

	_, err = openStore(ctx, &config.DatabaseConfig{Type: "mongodb"}, logger)
	assert.Error(t, err)
}

func TestNewAppServesRoutes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.MetricsEnabled = false
	app, err := newApp(context.Background(), cfg, middleware.NewJWTGateway(cfg.JWTSecret), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.close)

	srv := httptest.NewServer(app.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewAppRejectsBadTermsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Messaging.ModerationTermsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := newApp(context.Background(), cfg, middleware.NewJWTGateway(cfg.JWTSecret), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	app, err := newApp(context.Background(), cfg, middleware.NewJWTGateway(cfg.JWTSecret), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
