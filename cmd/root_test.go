package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/config"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/probe"
)

type fakeRunner struct {
	ran bool
	err error
}

func (f *fakeRunner) Run(context.Context) error {
	f.ran = true
	return f.err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func swapBuildApp(t *testing.T, fn func(context.Context, *config.Config) (runner, error)) {
	t.Helper()
	prev := buildApp
	buildApp = fn
	t.Cleanup(func() { buildApp = prev })
}

func TestServeBuildsAndRunsApp(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9191\nstore:\n  backend: memory\n")

	fake := &fakeRunner{}
	var got *config.Config
	swapBuildApp(t, func(_ context.Context, cfg *config.Config) (runner, error) {
		got = cfg
		return fake, nil
	})

	root := newRootCmd()
	root.SetArgs([]string{"--config", path, "serve"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.True(t, fake.ran)
	require.NotNil(t, got)
	require.Equal(t, 9191, got.Server.Port)
}

func TestServePropagatesBuildError(t *testing.T) {
	swapBuildApp(t, func(context.Context, *config.Config) (runner, error) {
		return nil, errors.New("no database")
	})

	root := newRootCmd()
	root.SetArgs([]string{"--config", "", "serve"})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "build application: no database")
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	swapBuildApp(t, func(context.Context, *config.Config) (runner, error) {
		t.Fatal("build must not run without config")
		return nil, nil
	})

	root := newRootCmd()
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "serve"})
	root.SetErr(&bytes.Buffer{})
	require.ErrorContains(t, root.ExecuteContext(context.Background()), "load config")
}

func TestProbePrintsReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Catalog</title></head><body>items</body></html>`))
	}))
	defer srv.Close()

	path := writeConfig(t, "probe:\n  timeout_seconds: 5\n  allow_private: true\n")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "probe", srv.URL + "/catalog"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var report struct {
		StatusCode int    `json:"status_code"`
		Title      string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Equal(t, http.StatusOK, report.StatusCode)
	require.Equal(t, "Catalog", report.Title)
}

func TestPreflightCommandRefusesLoopbackByDefault(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", "", "probe", "http://127.0.0.1:9/"})
	err := root.ExecuteContext(context.Background())
	require.ErrorIs(t, err, probe.ErrBlockedTarget)
}

func TestProbeRequiresURL(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"probe"})
	root.SetErr(&bytes.Buffer{})
	require.Error(t, root.ExecuteContext(context.Background()))
}
