package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/parleyhq/parley/settings"
)

type updateSettingsRequest struct {
	SystemInstruction *string               `json:"systemInstruction"`
	MemoryEnabled     *bool                 `json:"memoryEnabled"`
	Credentials       *settings.Credentials `json:"credentials"`
}

func (s *APIV1Service) registerSettingsRoutes(g *echo.Group) {
	g.GET("/settings", s.getSettings)
	g.PATCH("/settings", s.updateSettings)
}

func (s *APIV1Service) getSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.settings.Get())
}

func (s *APIV1Service) updateSettings(c echo.Context) error {
	req := &updateSettingsRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	err := s.settings.Update(c.Request().Context(), func(current *settings.Settings) {
		if req.SystemInstruction != nil {
			current.SystemInstruction = *req.SystemInstruction
		}
		if req.MemoryEnabled != nil {
			current.MemoryEnabled = *req.MemoryEnabled
		}
		if req.Credentials != nil {
			current.Credentials = *req.Credentials
		}
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s.settings.Get())
}
