package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	out, err := run(t, "token", "--user", "teacher-1", "--role", "teacher")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	_, err = run(t, "token", "--user", "x", "--role", "janitor")
	assert.Error(t, err)
}

func TestScheduleApplyPutsEveryEntry(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "windows.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
assessments:
  - id: quiz-1
    classroom_id: class-a
    time_limit: 45m
windows:
  - classroom_id: class-a
    start_at: 2026-03-02T08:00:00Z
    end_at: 2026-03-02T10:00:00Z
`), 0o600))

	out, err := run(t, "--server", srv.URL, "--token", "tok", "schedule", "apply", "-f", file)
	require.NoError(t, err)
	assert.Contains(t, out, "applied 1 assessments, 1 windows")
	assert.Equal(t, []string{"/api/v1/admin/assessments/quiz-1", "/api/v1/schedule/class-a"}, paths)
}

func TestCodesRevokeSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden","message":"forbidden"}`))
	}))
	defer srv.Close()

	_, err := run(t, "--server", srv.URL, "codes", "revoke", "0b5c7c1e-3d5f-4c55-9d43-8d1f0f2f3c10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}
