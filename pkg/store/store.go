// Package store is the durable record of tasks, steps and API calls, backed
// by an embedded single-file relational store. It is the only component
// that touches the database or, through pkg/workspace, a Task's files.
// One store type wraps the whole aggregate, opened once and threaded
// everywhere, built on modernc.org/sqlite + jmoiron/sqlx: a single SQLite
// file is what "embedded" means here, with no standalone database server
// to run alongside the binary.
package store

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/agentforge/pipeline/pkg/taskspec"
	"github.com/agentforge/pipeline/pkg/taxonomy"
	"github.com/agentforge/pipeline/pkg/workspace"
)

//go:embed schema.sql
var schemaSQL string

const maxFileSizeBytes = 50 * 1024

var executableWrapperPattern = regexp.MustCompile(`^gradlew$|\.sh$`)

// Store is the single entry point for persistence: the tasks/steps/api_calls
// tables and the workspace directory tree that backs them. A Store instance
// is one Task run's durable home, except for the workspace root, which is
// shared across tasks.
type Store struct {
	db            *sqlx.DB
	workspaceRoot string
	logger        *slog.Logger
}

// Open creates (or reuses) the SQLite database at dbPath, bootstraps its
// schema, and returns a Store rooted at workspaceRoot for file operations.
func Open(dbPath, workspaceRoot string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // serializes writers through the engine's own mutex

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	if err := os.MkdirAll(workspaceRoot, 0o755); err != nil {
		db.Close()
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	return &Store{db: db, workspaceRoot: workspaceRoot, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTask atomically creates the workspace directory and the task row:
// the directory is created first, and if the row insert fails the directory
// is removed so a half-created task is never visible.
func (s *Store) CreateTask(taskID string, spec taskspec.TaskSpec) (string, error) {
	dir, err := workspace.Bootstrap(s.workspaceRoot, taskID)
	if err != nil {
		return "", err
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", taxonomy.NewValidationError("store", "encode task spec: "+err.Error())
	}

	_, err = s.db.Exec(
		`INSERT INTO tasks (task_id, state, spec_json, api_call_count, total_tokens, start_time, error_message)
		 VALUES (?, ?, ?, 0, 0, ?, '')`,
		taskID, taskspec.TaskStatePlanning, string(specJSON), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("insert task row: %w", err)
	}

	return dir, nil
}

// UpdateTaskState transitions a task's lifecycle state, recording an error
// message when state is a failure terminal and stamping end_time for any
// terminal state.
func (s *Store) UpdateTaskState(taskID string, state taskspec.TaskState, errorMessage string) error {
	var endTime interface{}
	if state.Terminal() {
		endTime = time.Now().UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.Exec(
		`UPDATE tasks SET state = ?, error_message = ?, end_time = COALESCE(?, end_time) WHERE task_id = ?`,
		state, errorMessage, endTime, taskID,
	)
	if err != nil {
		return fmt.Errorf("update task state: %w", err)
	}
	return nil
}

// StorePlan persists the Planner's output against a task.
func (s *Store) StorePlan(taskID string, plan taskspec.Plan) error {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return taxonomy.NewValidationError("store", "encode plan: "+err.Error())
	}
	_, err = s.db.Exec(`UPDATE tasks SET plan_json = ? WHERE task_id = ?`, string(planJSON), taskID)
	if err != nil {
		return fmt.Errorf("store plan: %w", err)
	}
	return nil
}

// RecordStep appends one Coder/Critic attempt record.
func (s *Store) RecordStep(rec taskspec.StepRecord) error {
	issuesJSON, err := json.Marshal(rec.CriticIssues)
	if err != nil {
		return taxonomy.NewValidationError("store", "encode critic issues: "+err.Error())
	}

	var decision interface{}
	if rec.CriticDecision != nil {
		decision = string(*rec.CriticDecision)
	}

	_, err = s.db.Exec(
		`INSERT INTO step_records (task_id, step_number, file_path, attempt, coder_output, critic_decision, critic_issues_json, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.StepNumber, rec.FilePath, rec.Attempt, rec.CoderOutput, decision, string(issuesJSON),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// RecordAPICall inserts one API call row and bumps the parent task's
// api_call_count and total_tokens counters in the same transaction, so the
// aggregate counters used for budget checks can never drift from the
// append-only log.
func (s *Store) RecordAPICall(rec taskspec.APICallRecord) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO api_calls (task_id, agent, prompt_tokens, completion_tokens, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.TaskID, rec.Agent, rec.PromptTokens, rec.CompletionTokens, rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert api call: %w", err)
	}

	total := rec.PromptTokens + rec.CompletionTokens
	_, err = tx.Exec(
		`UPDATE tasks SET api_call_count = api_call_count + 1, total_tokens = total_tokens + ? WHERE task_id = ?`,
		total, rec.TaskID,
	)
	if err != nil {
		return fmt.Errorf("bump task counters: %w", err)
	}

	return tx.Commit()
}

type taskRow struct {
	TaskID       string  `db:"task_id"`
	State        string  `db:"state"`
	SpecJSON     string  `db:"spec_json"`
	PlanJSON     *string `db:"plan_json"`
	APICallCount int     `db:"api_call_count"`
	TotalTokens  int     `db:"total_tokens"`
	StartTime    string  `db:"start_time"`
	EndTime      *string `db:"end_time"`
	ErrorMessage string  `db:"error_message"`
}

// GetTask loads the current aggregate state of a task.
func (s *Store) GetTask(taskID string) (*taskspec.Task, error) {
	var row taskRow
	if err := s.db.Get(&row, `SELECT * FROM tasks WHERE task_id = ?`, taskID); err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return decodeTaskRow(row)
}

// ListTasks returns the most recently started tasks, newest first, for the
// read-only monitoring surface.
func (s *Store) ListTasks(limit int) ([]taskspec.Task, error) {
	var rows []taskRow
	if err := s.db.Select(&rows, `SELECT * FROM tasks ORDER BY start_time DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]taskspec.Task, 0, len(rows))
	for _, row := range rows {
		task, err := decodeTaskRow(row)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

func decodeTaskRow(row taskRow) (*taskspec.Task, error) {
	var spec taskspec.TaskSpec
	if err := json.Unmarshal([]byte(row.SpecJSON), &spec); err != nil {
		return nil, taxonomy.NewValidationError("store", "decode task spec: "+err.Error())
	}

	var plan *taskspec.Plan
	if row.PlanJSON != nil {
		plan = &taskspec.Plan{}
		if err := json.Unmarshal([]byte(*row.PlanJSON), plan); err != nil {
			return nil, taxonomy.NewValidationError("store", "decode plan: "+err.Error())
		}
	}

	startTime, err := time.Parse(time.RFC3339Nano, row.StartTime)
	if err != nil {
		return nil, taxonomy.NewValidationError("store", "decode start_time: "+err.Error())
	}

	var endTime *time.Time
	if row.EndTime != nil {
		t, err := time.Parse(time.RFC3339Nano, *row.EndTime)
		if err != nil {
			return nil, taxonomy.NewValidationError("store", "decode end_time: "+err.Error())
		}
		endTime = &t
	}

	return &taskspec.Task{
		TaskID:       row.TaskID,
		State:        taskspec.TaskState(row.State),
		Spec:         spec,
		Plan:         plan,
		APICallCount: row.APICallCount,
		TotalTokens:  row.TotalTokens,
		StartTime:    startTime,
		EndTime:      endTime,
		ErrorMessage: row.ErrorMessage,
	}, nil
}

// WriteFile resolves through pkg/workspace, enforces the size cap, writes
// to a sibling temp file, sets the mode by name pattern, then renames
// atomically over the destination.
func (s *Store) WriteFile(taskDir, relPath string, content []byte) error {
	if len(content) > maxFileSizeBytes {
		return taxonomy.NewValidationError("store", fmt.Sprintf("file %s is %d bytes, exceeds the %d byte limit", relPath, len(content), maxFileSizeBytes))
	}
	if len(content) > maxFileSizeBytes*8/10 {
		s.logger.Warn("file size approaching limit", "path", relPath, "bytes", len(content), "limit", maxFileSizeBytes)
	}

	dest, err := workspace.Sanitize(taskDir, relPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", relPath, err)
	}

	mode := os.FileMode(0o644)
	if executableWrapperPattern.MatchString(filepath.Base(dest)) {
		mode = 0o755
	}

	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, content, mode); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file for %s: %w", relPath, err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file into place for %s: %w", relPath, err)
	}

	return nil
}

// ReadFile resolves relPath through pkg/workspace and returns its contents.
func (s *Store) ReadFile(taskDir, relPath string) ([]byte, error) {
	path, err := workspace.Sanitize(taskDir, relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	return data, nil
}

// TaskDir returns the workspace directory a task_id resolves to, for
// callers (the UI server) that only have the ID and need the directory
// ListFiles/ReadFile expect.
func (s *Store) TaskDir(taskID string) string {
	return filepath.Join(s.workspaceRoot, taskID)
}

// ListFiles walks taskDir and returns every regular file's path relative to
// it, excluding dotfiles and in-flight ".tmp" files.
func (s *Store) ListFiles(taskDir string) ([]string, error) {
	var files []string
	err := filepath.Walk(taskDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if len(name) > 0 && name[0] == '.' {
			return nil
		}
		if filepath.Ext(name) == ".tmp" {
			return nil
		}
		rel, err := filepath.Rel(taskDir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files under %s: %w", taskDir, err)
	}
	return files, nil
}
