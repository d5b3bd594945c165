package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/parleyhq/parley/ledger"
)

type ledgerResponse struct {
	Balance float64        `json:"balance"`
	History []ledger.Entry `json:"history"`
}

type topUpRequest struct {
	Amount float64 `json:"amount"`
}

func (s *APIV1Service) registerLedgerRoutes(g *echo.Group) {
	g.GET("/ledger", s.getLedger)
	g.POST("/ledger/topup", s.topUp)
}

func (s *APIV1Service) getLedger(c echo.Context) error {
	return c.JSON(http.StatusOK, &ledgerResponse{
		Balance: s.ledger.Balance(),
		History: s.ledger.History(),
	})
}

func (s *APIV1Service) topUp(c echo.Context) error {
	req := &topUpRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	s.ledger.Credit(req.Amount, "top-up")
	return c.JSON(http.StatusOK, &ledgerResponse{
		Balance: s.ledger.Balance(),
		History: s.ledger.History(),
	})
}
