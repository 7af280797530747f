package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/application"
	"github.com/Meesho/BharatMLStack/choreographer/internal/complexity"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/internal/graph"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// maxLeaseTTLSeconds bounds ttl_seconds so the conversion to a Duration
// cannot overflow.
const maxLeaseTTLSeconds = 24 * 60 * 60

type Handler struct {
	engine *application.Engine
}

func NewHandler(engine *application.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health/self", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "true"})
	})

	api := router.Group("/api/1.0")
	{
		api.POST("/workflows", h.seed)
		api.GET("/workflows/:wf", h.getWorkflow)
		api.PUT("/workflows/:wf/executors/:state", h.assignExecutor)
		api.GET("/workflows/:wf/states/:state", h.getState)
		api.GET("/workflows/:wf/states/:state/ready", h.ready)
		api.POST("/workflows/:wf/states/:state/lease", h.acquireLease)
		api.POST("/workflows/:wf/states/:state/lease/renew", h.renewLease)
		api.DELETE("/workflows/:wf/states/:state/lease", h.releaseLease)
		api.POST("/workflows/:wf/states/:state/status", h.updateState)
		api.GET("/workflows/:wf/states/:state/output", h.getOutput)
		api.POST("/workflows/:wf/states/:state/tier", h.recordTier)
		api.POST("/workflows/:wf/notify", h.notify)
		api.POST("/workflows/:wf/finalize", h.finalize)
		api.GET("/workflows/:wf/audit", h.getAudit)
		api.POST("/complexity/score", h.score)
	}
}

func (h *Handler) seed(c *gin.Context) {
	var req SeedRequest
	if !bind(c, &req) {
		return
	}
	def, err := decodeDefinition(req.Definition)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.engine.Seed(c.Request.Context(), application.SeedRequest{
		WorkflowID:   req.WorkflowID,
		Definition:   def,
		Capabilities: req.Capabilities,
		Executors:    req.Executors,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if len(res.Created) > 0 {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

// decodeDefinition accepts a JSON object or a JSON string holding a JSON or
// YAML document.
func decodeDefinition(raw json.RawMessage) (graph.Definition, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return graph.Definition{}, fmt.Errorf("%w: definition is required", cerrors.ErrInvalidRequest)
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return graph.Definition{}, fmt.Errorf("%w: %v", cerrors.ErrInvalidRequest, err)
		}
		return graph.Parse([]byte(text))
	}
	return graph.Parse([]byte(trimmed))
}

func (h *Handler) getWorkflow(c *gin.Context) {
	meta, err := h.engine.GetWorkflow(c.Request.Context(), c.Param("wf"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (h *Handler) assignExecutor(c *gin.Context) {
	var req AssignExecutorRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.engine.AssignExecutor(c.Request.Context(), application.AssignRequest{
		WorkflowID: c.Param("wf"),
		State:      c.Param("state"),
		Executor:   req.Executor,
	})
	respond(c, res, err)
}

func (h *Handler) getState(c *gin.Context) {
	doc, err := h.engine.GetState(c.Request.Context(), c.Param("wf"), c.Param("state"))
	respond(c, doc, err)
}

func (h *Handler) ready(c *gin.Context) {
	res, err := h.engine.Ready(c.Request.Context(), c.Param("wf"), c.Param("state"))
	respond(c, res, err)
}

func (h *Handler) acquireLease(c *gin.Context) {
	var req AcquireLeaseRequest
	if !bind(c, &req) {
		return
	}
	ttl, err := leaseTTL(req.TTLSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.engine.AcquireLease(c.Request.Context(), application.AcquireRequest{
		WorkflowID:          c.Param("wf"),
		State:               c.Param("state"),
		Owner:               req.Owner,
		TTL:                 ttl,
		Token:               req.Token,
		RequireReady:        req.RequireReady,
		RequireOwnerMatch:   req.RequireOwnerMatch,
		AllowStealIfExpired: req.AllowStealIfExpired,
		SetRunning:          req.SetRunning,
	})
	respond(c, res, err)
}

func (h *Handler) renewLease(c *gin.Context) {
	var req RenewLeaseRequest
	if !bind(c, &req) {
		return
	}
	ttl, err := leaseTTL(req.TTLSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.engine.RenewLease(c.Request.Context(), application.RenewRequest{
		WorkflowID:      c.Param("wf"),
		State:           c.Param("state"),
		Token:           req.Token,
		TouchOnly:       req.TouchOnly,
		RejectIfExpired: req.RejectIfExpired,
		TTL:             ttl,
	})
	respond(c, res, err)
}

func (h *Handler) releaseLease(c *gin.Context) {
	var req ReleaseLeaseRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.engine.ReleaseLease(c.Request.Context(), application.ReleaseRequest{
		WorkflowID: c.Param("wf"),
		State:      c.Param("state"),
		Token:      req.Token,
		Force:      req.Force,
		ClearOwner: req.ClearOwner,
	})
	respond(c, res, err)
}

func (h *Handler) updateState(c *gin.Context) {
	var req UpdateStateRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.engine.UpdateState(c.Request.Context(), application.UpdateRequest{
		WorkflowID:    c.Param("wf"),
		State:         c.Param("state"),
		Status:        req.Status,
		LeaseToken:    req.LeaseToken,
		Output:        req.Output,
		ErrorMessage:  req.Error,
		SetFinishedAt: req.SetFinishedAt,
	})
	respond(c, res, err)
}

func (h *Handler) getOutput(c *gin.Context) {
	rec, err := h.engine.GetOutput(c.Request.Context(), c.Param("wf"), c.Param("state"))
	respond(c, rec, err)
}

func (h *Handler) recordTier(c *gin.Context) {
	var req complexity.Request
	if !bind(c, &req) {
		return
	}
	res, err := h.engine.RecordTier(c.Request.Context(), application.TierRequest{
		WorkflowID: c.Param("wf"),
		State:      c.Param("state"),
		Score:      req,
	})
	respond(c, res, err)
}

func (h *Handler) notify(c *gin.Context) {
	var req NotifyRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.engine.Notify(c.Request.Context(), application.NotifyRequest{
		WorkflowID:       c.Param("wf"),
		SourceState:      req.SourceState,
		IncludeOnlyReady: req.IncludeOnlyReady,
	})
	respond(c, res, err)
}

func (h *Handler) finalize(c *gin.Context) {
	var req FinalizeRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.engine.Finalize(c.Request.Context(), application.FinalizeRequest{
		WorkflowID:      c.Param("wf"),
		CloseOpenStates: req.CloseOpenStates,
		DeleteExecutors: req.DeleteExecutors,
		StatusOverride:  req.StatusOverride,
		Note:            req.Note,
	})
	respond(c, res, err)
}

func (h *Handler) getAudit(c *gin.Context) {
	audit, err := h.engine.GetAudit(c.Request.Context(), c.Param("wf"))
	respond(c, audit, err)
}

func (h *Handler) score(c *gin.Context) {
	var req complexity.Request
	if !bind(c, &req) {
		return
	}
	res, err := h.engine.ScoreComplexity(req)
	respond(c, res, err)
}

func leaseTTL(seconds int64) (time.Duration, error) {
	if seconds < 0 || seconds > maxLeaseTTLSeconds {
		return 0, fmt.Errorf("%w: ttl_seconds must be between 0 and %d, got %d", cerrors.ErrInvalidRequest, maxLeaseTTLSeconds, seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

// bind decodes an optional JSON body. An empty body leaves req at its zero
// value.
func bind(c *gin.Context, req any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, fmt.Errorf("%w: invalid request body: %v", cerrors.ErrInvalidRequest, err))
		return false
	}
	return true
}

func respond(c *gin.Context, body any, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	requestID := RequestID(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", requestID).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), RequestID: requestID})
}

// StatusFor maps engine errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, cerrors.ErrInvalidRequest),
		errors.Is(err, cerrors.ErrInvalidGraph),
		errors.Is(err, cerrors.ErrInvalidTransition),
		errors.Is(err, cerrors.ErrInvalidProfile):
		return http.StatusBadRequest
	case errors.Is(err, cerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cerrors.ErrContention),
		errors.Is(err, cerrors.ErrWorkflowConflict),
		errors.Is(err, cerrors.ErrWorkflowFinalized):
		return http.StatusConflict
	case errors.Is(err, cerrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
