package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/equipment-crawler/internal/config"
	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/source"
)

type fakeApp struct {
	opts    []equipment.Options
	result  equipment.ParseResult
	err     error
	served  bool
	closed  bool
	sources []source.Config
}

func (f *fakeApp) StartParsing(_ context.Context, opts equipment.Options) (equipment.ParseResult, error) {
	f.opts = append(f.opts, opts)
	return f.result, f.err
}

func (f *fakeApp) Serve(context.Context) error {
	f.served = true
	return nil
}

func (f *fakeApp) Sources() []source.Config { return f.sources }

func (f *fakeApp) Close() { f.closed = true }

// withApp swaps the application factory for the duration of a test.
func withApp(t *testing.T, a App, err error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return a, err
	}
	t.Cleanup(func() { newApp = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseCommandPassesFlags(t *testing.T) {
	app := &fakeApp{result: equipment.ParseResult{RunID: "run-1", Processed: 2, Data: []equipment.Record{{Name: "T-72"}}}}
	withApp(t, app, nil)

	out, err := execute(t, "parse", "--source", "wikipedia", "-s", "army-recognition",
		"--max-items", "5", "--category", "Tanks", "--dry-run")
	require.NoError(t, err)

	require.Len(t, app.opts, 1)
	assert.Equal(t, equipment.Options{
		Sources:    []string{"wikipedia", "army-recognition"},
		MaxItems:   5,
		Categories: []string{"Tanks"},
		DryRun:     true,
	}, app.opts[0])
	assert.True(t, app.closed)

	var got equipment.ParseResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Len(t, got.Data, 1)
}

func TestParseCommandWritesOutputFile(t *testing.T) {
	withApp(t, &fakeApp{result: equipment.ParseResult{Success: 3}}, nil)
	path := filepath.Join(t.TempDir(), "result.json")

	out, err := execute(t, "parse", "--output", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got equipment.ParseResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 3, got.Success)
}

func TestParseCommandReportsRunFailure(t *testing.T) {
	withApp(t, &fakeApp{err: errors.New("no source reachable")}, nil)

	out, err := execute(t, "parse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source reachable")
	assert.Contains(t, out, `"processed": 0`)
}

func TestParseCommandRejectsNegativeBudget(t *testing.T) {
	app := &fakeApp{}
	withApp(t, app, nil)

	_, err := execute(t, "parse", "--max-items", "-1")
	require.Error(t, err)
	assert.Empty(t, app.opts)
}

func TestServeCommand(t *testing.T) {
	app := &fakeApp{}
	withApp(t, app, nil)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	assert.True(t, app.served)
	assert.True(t, app.closed)
}

func TestSourcesCommand(t *testing.T) {
	withApp(t, &fakeApp{sources: source.Defaults()}, nil)

	out, err := execute(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, source.Wikipedia)
	assert.Contains(t, out, source.MilitaryToday)
}

func TestAppInitFailure(t *testing.T) {
	withApp(t, nil, errors.New("db down"))

	_, err := execute(t, "parse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize application services")
}

func TestConfigLoadFailure(t *testing.T) {
	withApp(t, &fakeApp{}, nil)

	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "parse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
