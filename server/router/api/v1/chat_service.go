package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/parleyhq/parley/chat"
)

type sendMessageRequest struct {
	Text        string            `json:"text"`
	Attachments []chat.Attachment `json:"attachments"`
}

type sendMessageResponse struct {
	UserMessage  *chat.Message `json:"userMessage"`
	ModelMessage *chat.Message `json:"modelMessage"`
}

type selectVariantRequest struct {
	VariantID string `json:"variantId"`
}

func (s *APIV1Service) registerChatRoutes(g *echo.Group) {
	g.POST("/conversations/:id/messages", s.sendMessage)
	g.POST("/conversations/:id/messages/:messageId/approve", s.approveToolCall)
	g.POST("/conversations/:id/messages/:messageId/reject", s.rejectToolCall)
	g.POST("/conversations/:id/messages/:messageId/select", s.selectVariant)
	g.POST("/conversations/:id/messages/:messageId/regenerate", s.regenerate)
	g.POST("/conversations/:id/stop", s.stop)
	g.GET("/conversations/:id/events", s.streamEvents)
}

func (s *APIV1Service) sendMessage(c echo.Context) error {
	req := &sendMessageRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	userMsg, modelMsg, err := s.orchestrator.SendMessage(c.Param("id"), req.Text, req.Attachments)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, &sendMessageResponse{UserMessage: userMsg, ModelMessage: modelMsg})
}

func (s *APIV1Service) approveToolCall(c echo.Context) error {
	if err := s.orchestrator.Approve(c.Param("id"), c.Param("messageId")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *APIV1Service) rejectToolCall(c echo.Context) error {
	if err := s.orchestrator.Reject(c.Param("id"), c.Param("messageId")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *APIV1Service) selectVariant(c echo.Context) error {
	req := &selectVariantRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := s.orchestrator.SelectVariant(c.Param("id"), c.Param("messageId"), req.VariantID); err != nil {
		return httpError(err)
	}
	msg, err := s.chat.Message(c.Param("id"), c.Param("messageId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (s *APIV1Service) regenerate(c echo.Context) error {
	modelMsg, err := s.orchestrator.Regenerate(c.Param("id"), c.Param("messageId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, modelMsg)
}

func (s *APIV1Service) stop(c echo.Context) error {
	s.orchestrator.Stop(c.Param("id"))
	return c.NoContent(http.StatusAccepted)
}

// streamEvents pushes message updates for one conversation as server-sent
// events until the client disconnects.
func (s *APIV1Service) streamEvents(c echo.Context) error {
	conversationID := c.Param("id")
	if _, err := s.chat.Get(conversationID); err != nil {
		return httpError(err)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	events, cancel := s.broker.Subscribe(conversationID)
	defer cancel()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-events:
			if _, err := fmt.Fprintf(resp, "event: message\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
