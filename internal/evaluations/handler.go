package evaluations

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"insight-backend/internal/questions"
	"insight-backend/internal/shared/server/middleware"
	"insight-backend/internal/shared/server/respond"
	"insight-backend/internal/shared/util"
)

// Handler wires HTTP handlers to the evaluations service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches evaluation routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/evaluations", h.startEvaluation)
	rg.POST("/evaluations/preview-chunks", h.previewChunks)
	rg.POST("/evaluations/:id/cancel", h.cancelEvaluation)
	rg.GET("/evaluations", h.listEvaluations)
	rg.GET("/evaluations/:id", h.getEvaluation)
}

type startRequest struct {
	Domain         string `json:"domain"`
	Mode           string `json:"mode"`
	Text           string `json:"text"`
	Context        string `json:"context"`
	Backend        string `json:"backend"`
	SelectedChunks []int  `json:"selectedChunks"`
}

// startEvaluation creates a job and streams its events as JSON lines until
// the terminal event. The response stays open for the whole run; a consumer
// that disconnects loses the feed but not the job.
func (h *Handler) startEvaluation(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ev, err := h.Svc.Create(c.Request.Context(), CreateInput{
		PrincipalID:    middleware.PrincipalIDFromContext(c),
		Domain:         req.Domain,
		Mode:           req.Mode,
		Backend:        req.Backend,
		Text:           req.Text,
		Context:        req.Context,
		SelectedChunks: req.SelectedChunks,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "input text is empty", nil)
		case errors.Is(err, questions.ErrUnknownDomain):
			respond.Error(c, http.StatusBadRequest, "validation_error", "unknown evaluation domain", nil)
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		}
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	agg := NewAggregator(NewLineWriter(c.Writer))
	agg.Started(ev.ID)
	h.Svc.Run(ev, agg)
}

type previewRequest struct {
	Text string `json:"text"`
}

func (h *Handler) previewChunks(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	chunks, err := h.Svc.PreviewChunks(req.Text)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "input text is empty", nil)
		return
	}
	respond.OK(c, gin.H{
		"chunks":     chunks,
		"totalWords": util.CountWords(req.Text),
	})
}

func (h *Handler) cancelEvaluation(c *gin.Context) {
	evaluationID := c.Param("id")
	if evaluationID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "evaluation id is required", nil)
		return
	}
	if err := h.Svc.Cancel(evaluationID); err != nil {
		respond.Error(c, http.StatusConflict, "not_running", "evaluation is not running", nil)
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{
		"evaluationId": evaluationID,
		"status":       "cancelling",
	})
}

func (h *Handler) getEvaluation(c *gin.Context) {
	evaluationID := c.Param("id")
	principalID := middleware.PrincipalIDFromContext(c)

	ev, err := h.Svc.Get(c.Request.Context(), evaluationID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "evaluation not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch evaluation", nil)
		}
		return
	}
	if ev.PrincipalID != principalID {
		respond.Error(c, http.StatusNotFound, "not_found", "evaluation not found", nil)
		return
	}
	respond.OK(c, ev)
}

func (h *Handler) listEvaluations(c *gin.Context) {
	principalID := middleware.PrincipalIDFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	out, err := h.Svc.List(c.Request.Context(), principalID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list evaluations", nil)
		return
	}
	respond.OK(c, gin.H{
		"evaluations": out,
		"limit":       limit,
		"offset":      offset,
	})
}
