package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/parleyhq/parley/chat"
	"github.com/parleyhq/parley/store"
)

type createConversationRequest struct {
	Title string `json:"title"`
	Mode  string `json:"mode"`
}

type updateConversationRequest struct {
	Title  *string `json:"title"`
	Mode   *string `json:"mode"`
	Pinned *bool   `json:"pinned"`
}

func (s *APIV1Service) registerConversationRoutes(g *echo.Group) {
	g.POST("/conversations", s.createConversation)
	g.GET("/conversations", s.listConversations)
	g.GET("/conversations/:id", s.getConversation)
	g.PATCH("/conversations/:id", s.updateConversation)
	g.DELETE("/conversations/:id", s.deleteConversation)
}

func (s *APIV1Service) createConversation(c echo.Context) error {
	req := &createConversationRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	conv := s.chat.Create(req.Title, chat.Mode(req.Mode))
	return c.JSON(http.StatusOK, conv)
}

func (s *APIV1Service) listConversations(c echo.Context) error {
	return c.JSON(http.StatusOK, s.chat.List())
}

func (s *APIV1Service) getConversation(c echo.Context) error {
	conv, err := s.chat.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *APIV1Service) updateConversation(c echo.Context) error {
	req := &updateConversationRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := s.chat.Update(c.Param("id"), &store.UpdateConversation{
		Title:  req.Title,
		Mode:   req.Mode,
		Pinned: req.Pinned,
	}); err != nil {
		return httpError(err)
	}
	conv, err := s.chat.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *APIV1Service) deleteConversation(c echo.Context) error {
	if err := s.chat.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
