package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/journal/internal/config"
	"github.com/mx-space/journal/internal/middleware"
	"github.com/mx-space/journal/internal/modules/entrysummary"
	"github.com/mx-space/journal/internal/modules/journal"
	"github.com/mx-space/journal/internal/modules/streak"
	"github.com/mx-space/journal/internal/modules/weekly"
	"github.com/mx-space/journal/internal/pkg/response"
)

type Handler struct {
	reg     *Registry
	limiter gin.HandlerFunc
}

// NewHandler builds the journal API. limiter guards the routes that call the
// AI provider and may be nil.
func NewHandler(reg *Registry, limiter gin.HandlerFunc) *Handler {
	return &Handler{reg: reg, limiter: limiter}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	authed := rg.Group("", authMW)
	authed.GET("/state", h.state)
	authed.POST("/sync", h.sync)
	authed.GET("/holds", h.holds)
	authed.GET("/streaks", h.streaks)
	authed.GET("/weekly", h.listWeekly)
	authed.GET("/weekly/eligibility", h.eligibility)

	entries := authed.Group("/entries")
	entries.POST("", h.createEntry)
	entries.PATCH("/:id", h.updateEntry)
	entries.DELETE("/:id", h.deleteEntry)
	entries.GET("/:id/summary", h.summary)

	var aiMW []gin.HandlerFunc
	if h.limiter != nil {
		aiMW = append(aiMW, h.limiter)
	}
	ai := authed.Group("", aiMW...)
	ai.POST("/entries/:id/summary", h.generate)
	ai.POST("/entries/:id/summary/retry", h.retry)
	ai.POST("/entries/:id/summary/regenerate", h.regenerate)
	ai.POST("/weekly", h.generateWeekly)
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	s, err := h.reg.Get(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) state(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.OK(c, s.Journal.Snapshot())
}

func (h *Handler) sync(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if c.Query("reset") == "true" {
		if err := s.Journal.ResetCache(ctx); err != nil {
			response.InternalError(c, err)
			return
		}
	}
	replayed, err := s.Journal.Reconcile(ctx)
	if err == nil && replayed == 0 {
		err = s.Journal.Refresh(ctx)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, syncResponse{Replayed: replayed, State: s.Journal.Snapshot()})
}

func (h *Handler) holds(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.OK(c, s.Journal.HoldStatuses())
}

func (h *Handler) location(c *gin.Context, s *Session) (*time.Location, bool) {
	raw := strings.TrimSpace(c.Query("tz"))
	if raw == "" {
		return s.Journal.Location(), true
	}
	loc, err := config.ParseLocation(raw)
	if err != nil {
		response.BadRequest(c, "invalid tz: "+err.Error())
		return nil, false
	}
	return loc, true
}

func (h *Handler) streaks(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	loc, ok := h.location(c, s)
	if !ok {
		return
	}
	response.OK(c, streak.ComputeStreaks(s.Journal.Entries(), loc, h.reg.Now()))
}

func (h *Handler) eligibility(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	loc, ok := h.location(c, s)
	if !ok {
		return
	}
	response.OK(c, streak.ComputeWeeklyEligibility(s.Journal.Entries(), s.Journal.WeeklySummaries(), loc))
}

func (h *Handler) listWeekly(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.OK(c, s.Journal.WeeklySummaries())
}

func (h *Handler) createEntry(c *gin.Context) {
	var in journal.EntryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	entry, err := s.Journal.CreateEntry(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, entry)
}

func (h *Handler) updateEntry(c *gin.Context) {
	var patch journal.EntryPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	entry, err := s.Journal.UpdateEntry(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, entry)
}

func (h *Handler) deleteEntry(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Journal.DeleteEntry(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) summary(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, found := s.Journal.Entry(id); !found {
		writeError(c, journal.ErrEntryNotFound)
		return
	}
	view := summaryView{
		State:      s.Summaries.State(id),
		MaxRetries: s.Summaries.MaxRetries(),
	}
	if sum, found := s.Journal.EntrySummaryFor(id); found {
		view.Summary = &sum
	}
	if hold, found := s.Journal.HoldStatusFor(id); found {
		view.Hold = &hold
		view.CanRetry = hold.RetryCount < view.MaxRetries
	}
	response.OK(c, view)
}

type summaryCall func(m *entrysummary.Machine, ctx context.Context, id string, wait time.Duration) (entrysummary.Result, error)

func (h *Handler) runSummary(c *gin.Context, call summaryCall) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := call(s.Summaries, c.Request.Context(), c.Param("id"), h.reg.WaitTimeout())
	if errors.Is(err, entrysummary.ErrStillGenerating) {
		response.Accepted(c, res)
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) generate(c *gin.Context) {
	h.runSummary(c, (*entrysummary.Machine).GenerateWithin)
}

func (h *Handler) retry(c *gin.Context) {
	h.runSummary(c, (*entrysummary.Machine).RetryWithin)
}

func (h *Handler) regenerate(c *gin.Context) {
	h.runSummary(c, (*entrysummary.Machine).Regenerate)
}

func (h *Handler) generateWeekly(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.Weekly.MaybeGenerateWeekly(c.Request.Context(), h.reg.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Outcome == weekly.OutcomeCreated {
		response.Created(c, res)
		return
	}
	response.OK(c, res)
}

func writeError(c *gin.Context, err error) {
	var genErr *weekly.GenerationError
	var persistErr *journal.PersistError
	switch {
	case errors.Is(err, ErrNoUser):
		response.Unauthorized(c)
	case errors.Is(err, journal.ErrEntryNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, journal.ErrInvalidMood),
		errors.Is(err, journal.ErrInvalidDate),
		errors.Is(err, journal.ErrEmptyContent):
		response.BadRequest(c, err.Error())
	case errors.Is(err, entrysummary.ErrRetryLimit),
		errors.Is(err, entrysummary.ErrInProgress),
		errors.Is(err, entrysummary.ErrEntryChanged):
		response.Conflict(c, err.Error())
	case errors.As(err, &genErr):
		response.BadGateway(c, err.Error())
	case errors.As(err, &persistErr), errors.Is(err, journal.ErrUnavailable):
		response.ServiceUnavailable(c, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		response.GatewayTimeout(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
