package usage

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"insight-backend/internal/shared/server/middleware"
	"insight-backend/internal/shared/server/respond"
)

// Handler exposes metering endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches usage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/usage", h.getUsage)
}

func (h *Handler) getUsage(c *gin.Context) {
	principalID := middleware.PrincipalIDFromContext(c)
	meter, err := h.Svc.Get(c.Request.Context(), principalID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "USAGE_UNAVAILABLE", "could not load usage", nil)
		return
	}
	respond.OK(c, meter)
}
