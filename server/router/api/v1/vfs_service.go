package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/parleyhq/parley/store"
)

type createNodeRequest struct {
	ParentID string `json:"parentId"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

type updateNodeRequest struct {
	Name     *string `json:"name"`
	ParentID *string `json:"parentId"`
	Content  *string `json:"content"`
}

func (s *APIV1Service) registerVFSRoutes(g *echo.Group) {
	g.GET("/vfs", s.listNodes)
	g.POST("/vfs", s.createNode)
	g.GET("/vfs/:id", s.getNode)
	g.PATCH("/vfs/:id", s.updateNode)
	g.DELETE("/vfs/:id", s.deleteNode)
}

func (s *APIV1Service) listNodes(c echo.Context) error {
	nodes, err := s.vfs.List(c.QueryParam("parentId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, nodes)
}

func (s *APIV1Service) createNode(c echo.Context) error {
	req := &createNodeRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	node, err := s.vfs.Create(c.Request().Context(), req.ParentID, req.Name,
		store.VFSNodeKind(req.Kind), req.Content, req.MimeType)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, node)
}

func (s *APIV1Service) getNode(c echo.Context) error {
	node, err := s.vfs.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, node)
}

// updateNode applies rename, move and content edits in one call; each field
// is independent and optional.
func (s *APIV1Service) updateNode(c echo.Context) error {
	req := &updateNodeRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	ctx := c.Request().Context()
	id := c.Param("id")

	if req.Name != nil {
		if _, err := s.vfs.Rename(ctx, id, *req.Name); err != nil {
			return httpError(err)
		}
	}
	if req.ParentID != nil {
		if _, err := s.vfs.Move(ctx, id, *req.ParentID); err != nil {
			return httpError(err)
		}
	}
	if req.Content != nil {
		if _, err := s.vfs.Write(ctx, id, *req.Content); err != nil {
			return httpError(err)
		}
	}
	node, err := s.vfs.Get(id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, node)
}

func (s *APIV1Service) deleteNode(c echo.Context) error {
	if err := s.vfs.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
