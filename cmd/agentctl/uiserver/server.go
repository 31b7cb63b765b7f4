// Package uiserver is a local, read-only monitoring server: it only ever
// reads through pkg/store, never drives an Orchestrator. A gin.Engine
// wrapped by a thin struct holding the collaborators it reads from.
package uiserver

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentforge/pipeline/pkg/store"
)

// Server is the gin-backed read-only observer: task list, task detail, and
// the files an accepted Step wrote to its workspace.
type Server struct {
	store  *store.Store
	logger *slog.Logger
	engine *gin.Engine
}

// New builds a Server reading through st. logger may be nil, in which case
// slog.Default() is used.
func New(st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{store: st, logger: logger, engine: engine}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/tasks", s.handleListTasks)
	s.engine.GET("/tasks/:task_id", s.handleGetTask)
	s.engine.GET("/tasks/:task_id/files", s.handleListFiles)
	s.engine.GET("/tasks/:task_id/files/*path", s.handleReadFile)
}

// ListenAndServe blocks serving on addr (e.g. ":8090").
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("ui server listening", "addr", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.store.ListTasks(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleGetTask(c *gin.Context) {
	taskID := c.Param("task_id")
	task, err := s.store.GetTask(taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("task %s not found", taskID)})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleListFiles(c *gin.Context) {
	taskID := c.Param("task_id")
	files, err := s.store.ListFiles(s.store.TaskDir(taskID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (s *Server) handleReadFile(c *gin.Context) {
	taskID := c.Param("task_id")
	relPath := c.Param("path")
	if len(relPath) > 0 && relPath[0] == '/' {
		relPath = relPath[1:]
	}

	content, err := s.store.ReadFile(s.store.TaskDir(taskID), relPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", content)
}
