package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type memoryRequest struct {
	Content string `json:"content"`
}

func (s *APIV1Service) registerMemoryRoutes(g *echo.Group) {
	g.GET("/memories", s.listMemories)
	g.POST("/memories", s.createMemory)
	g.PATCH("/memories/:id", s.updateMemory)
	g.DELETE("/memories/:id", s.deleteMemory)
}

func (s *APIV1Service) listMemories(c echo.Context) error {
	return c.JSON(http.StatusOK, s.memories.List())
}

func (s *APIV1Service) createMemory(c echo.Context) error {
	req := &memoryRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	entry, err := s.memories.Save(c.Request().Context(), req.Content)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *APIV1Service) updateMemory(c echo.Context) error {
	req := &memoryRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	entry, err := s.memories.Update(c.Request().Context(), c.Param("id"), req.Content)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *APIV1Service) deleteMemory(c echo.Context) error {
	if err := s.memories.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
