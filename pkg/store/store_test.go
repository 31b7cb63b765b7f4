package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/pipeline/pkg/taskspec"
)

func newTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.db"), filepath.Join(dir, "workspaces"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateTaskCreatesRowAndDirectory(t *testing.T) {
	s := newTestStore(t)

	dir, err := s.CreateTask("task-1", taskspec.TaskSpec{AppName: "Demo"})
	require.NoError(t, err)
	require.DirExists(t, dir)

	task, err := s.GetTask("task-1")
	require.NoError(t, err)
	require.Equal(t, taskspec.TaskStatePlanning, task.State)
	require.Equal(t, "Demo", task.Spec.AppName)
	require.Equal(t, 0, task.APICallCount)
}

func TestUpdateTaskStateStampsEndTimeOnTerminal(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateTask("task-1", taskspec.TaskSpec{})
	require.NoError(t, err)

	require.NoError(t, s.UpdateTaskState("task-1", taskspec.TaskStateExecuting, ""))
	task, err := s.GetTask("task-1")
	require.NoError(t, err)
	require.Nil(t, task.EndTime)

	require.NoError(t, s.UpdateTaskState("task-1", taskspec.TaskStateFailed, "boom"))
	task, err = s.GetTask("task-1")
	require.NoError(t, err)
	require.NotNil(t, task.EndTime)
	require.Equal(t, "boom", task.ErrorMessage)
}

func TestRecordAPICallBumpsCounters(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateTask("task-1", taskspec.TaskSpec{})
	require.NoError(t, err)

	require.NoError(t, s.RecordAPICall(taskspec.APICallRecord{
		TaskID: "task-1", Agent: taskspec.AgentCoder,
		PromptTokens: 100, CompletionTokens: 50, Timestamp: time.Now(),
	}))
	require.NoError(t, s.RecordAPICall(taskspec.APICallRecord{
		TaskID: "task-1", Agent: taskspec.AgentCritic,
		PromptTokens: 20, CompletionTokens: 10, Timestamp: time.Now(),
	}))

	task, err := s.GetTask("task-1")
	require.NoError(t, err)
	require.Equal(t, 2, task.APICallCount)
	require.Equal(t, 180, task.TotalTokens)
}

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	s := newTestStore(t)
	dir, err := s.CreateTask("task-1", taskspec.TaskSpec{})
	require.NoError(t, err)

	require.NoError(t, s.WriteFile(dir, "app/src/main/Main.kt", []byte("package main")))
	data, err := s.ReadFile(dir, "app/src/main/Main.kt")
	require.NoError(t, err)
	require.Equal(t, "package main", string(data))

	files, err := s.ListFiles(dir)
	require.NoError(t, err)
	require.Contains(t, files, filepath.Join("app", "src", "main", "Main.kt"))
}

func TestWriteFileSetsExecutableModeForWrapperName(t *testing.T) {
	s := newTestStore(t)
	dir, err := s.CreateTask("task-1", taskspec.TaskSpec{})
	require.NoError(t, err)

	require.NoError(t, s.WriteFile(dir, "gradlew", []byte("#!/bin/sh\n")))
	info, err := os.Stat(filepath.Join(dir, "gradlew"))
	require.NoError(t, err)
	require.Equal(t, "-rwxr-xr-x", info.Mode().String())
}

func TestWriteFileRejectsOversizedContent(t *testing.T) {
	s := newTestStore(t)
	dir, err := s.CreateTask("task-1", taskspec.TaskSpec{})
	require.NoError(t, err)

	big := make([]byte, maxFileSizeBytes+1)
	err = s.WriteFile(dir, "big.txt", big)
	require.Error(t, err)
}

func TestRecordStepPersistsCriticDecision(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateTask("task-1", taskspec.TaskSpec{})
	require.NoError(t, err)

	decision := taskspec.CriticAccept
	err = s.RecordStep(taskspec.StepRecord{
		TaskID: "task-1", StepNumber: 1, FilePath: "a.kt", Attempt: 1,
		CoderOutput: "code", CriticDecision: &decision, Timestamp: time.Now(),
	})
	require.NoError(t, err)
}
