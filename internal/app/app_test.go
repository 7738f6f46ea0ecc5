package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/equipment-crawler/internal/config"
	"github.com/JakeFAU/equipment-crawler/internal/source"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuildWithInMemoryBackends(t *testing.T) {
	t.Parallel()

	a, err := Build(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Pipeline())
	assert.Nil(t, a.pool)
	assert.Nil(t, a.publisher)
	assert.Nil(t, a.blobs)
	assert.Nil(t, a.headless)
	assert.NotNil(t, a.hub)
	assert.NotNil(t, a.tracer)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/parser/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), source.Wikipedia)
}

func TestBuildAppliesSourceOverrides(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	enabled := true
	retries := 7
	cfg.Sources = map[string]source.Override{
		source.MilitaryToday: {Enabled: &enabled, MaxRetries: &retries},
	}

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	src, err := a.Registry().Lookup(source.MilitaryToday)
	require.NoError(t, err)
	assert.True(t, src.Enabled)
	assert.Equal(t, 7, src.MaxRetries)
}

func TestBuildRejectsUnknownSourceOverride(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Sources = map[string]source.Override{"nowhere": {}}

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.ErrorIs(t, err, source.ErrUnknownSource)
}

func TestBuildWithLocalStorage(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendLocal
	cfg.Storage.Local.BaseDir = filepath.Join(t.TempDir(), "images")

	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	a.Close()
	assert.DirExists(t, cfg.Storage.Local.BaseDir)
}

func TestBuildFailsOnBadDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.DB.DSN = "postgres://%zz@localhost/equipment"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database init failed")
}

func TestCloseReleasesHubAndTracer(t *testing.T) {
	t.Parallel()

	a, err := Build(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)

	a.Close()
	assert.Nil(t, a.hub)
	assert.Nil(t, a.tracer)
	// A second Close is harmless.
	a.Close()
}
