package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/studiosync/internal/errors"
	"github.com/3leaps/studiosync/internal/server/handlers"
	"github.com/3leaps/studiosync/pkg/provider/file"
)

func TestSignalHealthChecker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := signalHealthChecker{shutdown: ctx}
	assert.NoError(t, c.CheckHealth(context.Background()))

	cancel()
	err := c.CheckHealth(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Error(t, signalHealthChecker{}.CheckHealth(context.Background()))
}

func TestIdentityHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		binaryName string
		envPrefix  string
		configName string
		errContain string
	}{
		{"all fields valid", "studiosync", "STUDIOSYNC", "studiosync", ""},
		{"missing binary name", "", "STUDIOSYNC", "studiosync", "missing binary name"},
		{"missing env prefix", "studiosync", "", "studiosync", "missing env prefix"},
		{"missing config name", "studiosync", "STUDIOSYNC", "", "missing config name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := identityHealthChecker{
				binaryName: tt.binaryName,
				envPrefix:  tt.envPrefix,
				configName: tt.configName,
			}.CheckHealth(context.Background())
			if tt.errContain == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContain)
		})
	}
}

func TestSourceHealthChecker(t *testing.T) {
	err := sourceHealthChecker{}.CheckHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source provider not configured")

	prov, err := file.New(file.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	loadTestConfig(t, nil)
	assert.NoError(t, sourceHealthChecker{prov: prov}.CheckHealth(context.Background()))
}

func TestServeHealthWiring(t *testing.T) {
	loadTestConfig(t, nil)
	identity := identityHealthChecker{binaryName: "studiosync", envPrefix: "STUDIOSYNC", configName: "studiosync"}

	t.Run("missing source provider", func(t *testing.T) {
		hm := handlers.NewHealthManager("test")
		hm.RegisterChecker("signals", signalHealthChecker{shutdown: context.Background()})
		hm.RegisterChecker("identity", identity)
		hm.RegisterChecker("source", sourceHealthChecker{prov: nil})

		rec := httptest.NewRecorder()
		hm.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body apperrors.HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		checks, ok := body.Error.Details["checks"].(map[string]any)
		require.True(t, ok, rec.Body.String())
		assert.Equal(t, "unhealthy", checks["source"])
		assert.Equal(t, "healthy", checks["identity"])
		assert.Equal(t, "healthy", checks["signals"])
	})

	t.Run("shutting down", func(t *testing.T) {
		prov, err := file.New(file.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		hm := handlers.NewHealthManager("test")
		hm.RegisterChecker("signals", signalHealthChecker{shutdown: ctx})
		hm.RegisterChecker("source", sourceHealthChecker{prov: prov})

		rec := httptest.NewRecorder()
		hm.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"signals":"unhealthy"`)
		assert.Contains(t, rec.Body.String(), `"source":"healthy"`)
	})
}
