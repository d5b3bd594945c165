// Package v1 implements the JSON API consumed by the web client. Handlers
// delegate to the orchestrator and the domain services; streaming updates go
// out over server-sent events.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/parleyhq/parley/chat"
	"github.com/parleyhq/parley/chat/orchestrator"
	"github.com/parleyhq/parley/ledger"
	"github.com/parleyhq/parley/memory"
	"github.com/parleyhq/parley/settings"
	"github.com/parleyhq/parley/vfs"
)

type APIV1Service struct {
	orchestrator *orchestrator.Orchestrator
	chat         *chat.Service
	vfs          *vfs.Service
	memories     *memory.Service
	settings     *settings.Repository
	ledger       *ledger.Ledger
	broker       *Broker
}

func NewAPIV1Service(o *orchestrator.Orchestrator, chatSvc *chat.Service, vfsSvc *vfs.Service,
	memories *memory.Service, repo *settings.Repository, bank *ledger.Ledger) *APIV1Service {
	broker := NewBroker()
	o.SetNotifier(broker)
	return &APIV1Service{
		orchestrator: o,
		chat:         chatSvc,
		vfs:          vfsSvc,
		memories:     memories,
		settings:     repo,
		ledger:       bank,
		broker:       broker,
	}
}

func (s *APIV1Service) Register(g *echo.Group) {
	s.registerConversationRoutes(g)
	s.registerChatRoutes(g)
	s.registerVFSRoutes(g)
	s.registerMemoryRoutes(g)
	s.registerSettingsRoutes(g)
	s.registerLedgerRoutes(g)
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, chat.ErrMessageNotFound),
		errors.Is(err, vfs.ErrNodeNotFound),
		errors.Is(err, memory.ErrMemoryNotFound),
		errors.Is(err, orchestrator.ErrVariantNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrTurnInFlight),
		errors.Is(err, orchestrator.ErrAlreadyResolved),
		errors.Is(err, vfs.ErrNameTaken),
		errors.Is(err, vfs.ErrCyclicMove):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrInvalidMessage),
		errors.Is(err, orchestrator.ErrNotAwaitingApproval),
		errors.Is(err, orchestrator.ErrNotAwaitingSelection),
		errors.Is(err, vfs.ErrEmptyName),
		errors.Is(err, vfs.ErrNotFolder),
		errors.Is(err, vfs.ErrNotFile),
		errors.Is(err, vfs.ErrFolderContent):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
