package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasesync/internal/app"
	"phasesync/internal/config"
	"phasesync/internal/store"
	httpTransport "phasesync/internal/transport/http"
)

func TestRequestRoom(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	settings := app.DefaultHubSettings()
	settings.CleanupInterval = 0
	hub := app.NewHub(store.NewMemoryStore(), settings, logger)
	defer hub.Close()

	cfg := &config.Config{Server: config.ServerConfig{Env: "development"}}
	ts := httptest.NewServer(httpTransport.NewServer(cfg, hub, prometheus.NewRegistry(), logger).Handler())
	defer ts.Close()

	code, err := requestRoom(context.Background(), ts.URL+"/")
	require.NoError(t, err)
	assert.True(t, hub.RoomExists(context.Background(), code))
}

func TestRequestRoom_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"success":false,"error":{"code":"CREATION_FAILED","message":"Failed to create room"}}`)
	}))
	defer ts.Close()

	_, err := requestRoom(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to create room")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("loud"))
}
