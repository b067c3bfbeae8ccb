package merge

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Engine is the part of the resolution engine these routes use
type Engine interface {
	MergeEntities(ctx context.Context, id1, id2 string) (models.MergeResult, error)
	GetMergeHistory() map[string]string
	ResolveMergedID(id string) string
	RetryPendingDeletes(ctx context.Context) (int, error)
}

// MergeRequest asks for two entities to be merged
type MergeRequest struct {
	Entity1ID string `json:"entity1_id" validate:"required"`
	Entity2ID string `json:"entity2_id" validate:"required"`
}

// ResolveResponse maps an id to the entity it now lives in
type ResolveResponse struct {
	ID         string `json:"id"`
	ResolvedID string `json:"resolved_id"`
}

// RetryResponse reports how many pending deletes completed
type RetryResponse struct {
	Retried int `json:"retried"`
}

// Handler serves the merge routes
type Handler struct {
	engine Engine
	logger ectologger.Logger
}

// NewHandler creates a merge handler
func NewHandler(engine Engine, logger ectologger.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Register registers merge routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Merge)
	g.GET("/history", h.History)
	g.GET("/resolve/:id", h.Resolve)
	g.POST("/pending/retry", h.RetryPending)
}

// Merge merges two entities. A rejected merge is a 200 with success false.
func (h *Handler) Merge(c echo.Context) error {
	ctx := c.Request().Context()

	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	result, err := h.engine.MergeEntities(ctx, req.Entity1ID, req.Entity2ID)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"entity1_id": req.Entity1ID,
		"entity2_id": req.Entity2ID,
		"success":    result.Success,
	}).Info("Manual merge requested")

	return c.JSON(http.StatusOK, result)
}

// History returns every merged id and its survivor
func (h *Handler) History(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.GetMergeHistory())
}

// Resolve follows the merge chain of an id
func (h *Handler) Resolve(c echo.Context) error {
	id := c.Param("id")
	return c.JSON(http.StatusOK, ResolveResponse{ID: id, ResolvedID: h.engine.ResolveMergedID(id)})
}

// RetryPending retries deletes left behind by partial merges
func (h *Handler) RetryPending(c echo.Context) error {
	n, err := h.engine.RetryPendingDeletes(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RetryResponse{Retried: n})
}
