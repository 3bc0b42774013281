// Package crontask exposes the scheduler and the generation task ledger over
// HTTP.
package crontask

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	pkgcron "github.com/mx-space/journal/internal/pkg/cron"
	"github.com/mx-space/journal/internal/pkg/response"
	"github.com/mx-space/journal/internal/pkg/taskqueue"
)

const defaultTaskLimit = 50

// Handler wraps the scheduler for HTTP access. taskSvc is nil when Redis is
// disabled.
type Handler struct {
	sched   *pkgcron.Scheduler
	taskSvc *taskqueue.Service
}

func NewHandler(sched *pkgcron.Scheduler, taskSvc *taskqueue.Service) *Handler {
	return &Handler{sched: sched, taskSvc: taskSvc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/cron-task", authMW)
	g.GET("", h.list)
	g.POST("/:name/run", h.run)

	tasks := g.Group("/tasks")
	tasks.GET("", h.listTasks)
	tasks.GET("/:taskId", h.getTask)
	tasks.DELETE("", h.deleteTasks)
}

// GET /cron-task
func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

// POST /cron-task/:name/run
func (h *Handler) run(c *gin.Context) {
	name := c.Param("name")
	if !h.known(name) {
		response.NotFound(c, "cron job not found")
		return
	}
	if err := h.sched.Run(c.Request.Context(), name); err != nil {
		if errors.Is(err, pkgcron.ErrJobRunning) {
			response.Conflict(c, err.Error())
			return
		}
		response.OK(c, gin.H{"name": name, "ok": false, "message": err.Error()})
		return
	}
	response.OK(c, gin.H{"name": name, "ok": true})
}

func (h *Handler) known(name string) bool {
	for _, item := range h.sched.List() {
		if item.Name == name {
			return true
		}
	}
	return false
}

// GET /cron-task/tasks?type=&status=&limit=
func (h *Handler) listTasks(c *gin.Context) {
	if h.taskSvc == nil {
		response.OK(c, []*taskqueue.Task{})
		return
	}
	limit := defaultTaskLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	tasks, err := h.taskSvc.List(c.Request.Context(), limit, c.Query("type"), taskqueue.TaskStatus(c.Query("status")))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, tasks)
}

// GET /cron-task/tasks/:taskId
func (h *Handler) getTask(c *gin.Context) {
	if h.taskSvc == nil {
		response.NotFound(c, "task not found")
		return
	}
	task, err := h.taskSvc.GetByID(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFound(c, "task not found")
		return
	}
	response.OK(c, task)
}

// DELETE /cron-task/tasks?before=<unix_ms>
func (h *Handler) deleteTasks(c *gin.Context) {
	if h.taskSvc == nil {
		response.NoContent(c)
		return
	}
	before := time.Now()
	if raw := c.Query("before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid before")
			return
		}
		before = time.UnixMilli(v)
	}
	if err := h.taskSvc.DeleteCompleted(c.Request.Context(), before); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
