package uiserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/pipeline/pkg/store"
	"github.com/agentforge/pipeline/pkg/taskspec"
)

func newTestStore(t *testing.T) *store.Store {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "state.db"), filepath.Join(dir, "workspaces"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestHandleListTasks(t *testing.T) {
	st := newTestStore(t)
	_, err := st.CreateTask("task-1", taskspec.TaskSpec{AppName: "Demo"})
	require.NoError(t, err)

	srv := New(st, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	srv.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tasks []taskspec.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tasks, 1)
	require.Equal(t, "task-1", body.Tasks[0].TaskID)
}

func TestHandleGetTaskNotFound(t *testing.T) {
	st := newTestStore(t)
	srv := New(st, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/missing", nil)
	srv.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListAndReadFiles(t *testing.T) {
	st := newTestStore(t)
	dir, err := st.CreateTask("task-1", taskspec.TaskSpec{})
	require.NoError(t, err)
	require.NoError(t, st.WriteFile(dir, "build.gradle", []byte("plugins {}")))

	srv := New(st, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/task-1/files", nil)
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listBody struct {
		Files []string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	require.Contains(t, listBody.Files, "build.gradle")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/tasks/task-1/files/build.gradle", nil)
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "plugins {}", rec.Body.String())
}
