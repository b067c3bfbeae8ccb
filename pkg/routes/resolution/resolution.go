package resolution

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
	ResolveAll(ctx context.Context, entityType string) (models.ResolutionSession, error)
	GetSession() *models.ResolutionSession
}

// StartRequest starts a resolution session. An empty entity type covers every type.
type StartRequest struct {
	EntityType string `json:"entity_type" validate:"omitempty,oneof=Person Organization Generic"`
}

// Handler serves the resolution session routes
type Handler struct {
	engine Engine
	logger ectologger.Logger
}

// NewHandler creates a resolution handler
func NewHandler(engine Engine, logger ectologger.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Register registers resolution routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Start)
	g.GET("/current", h.Current)
}

// Start runs a session to completion and returns its final state
func (h *Handler) Start(c echo.Context) error {
	ctx := c.Request().Context()

	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	session, err := h.engine.ResolveAll(ctx, req.EntityType)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id":      session.ID,
		"merges_executed": session.MergesExecuted,
	}).Info("Resolution session finished")

	return c.JSON(http.StatusOK, session)
}

// Current returns the most recent session
func (h *Handler) Current(c echo.Context) error {
	session := h.engine.GetSession()
	if session == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "no resolution session has run")
	}
	return c.JSON(http.StatusOK, session)
}
