package entity

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Engine is the part of the resolution engine these routes use
type Engine interface {
	FindDuplicates(ctx context.Context, entityID string) ([]models.EntityMatch, error)
}

// Handler serves the entity routes
type Handler struct {
	engine Engine
}

// NewHandler creates an entity handler
func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// Register registers entity routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id/duplicates", h.Duplicates)
}

// Duplicates lists scored duplicate candidates of one entity
func (h *Handler) Duplicates(c echo.Context) error {
	matches, err := h.engine.FindDuplicates(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, matches)
}
