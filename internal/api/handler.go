package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"reservation-sync-backend/internal/lobbypms"
	"reservation-sync-backend/internal/settings"
	"reservation-sync-backend/internal/store"
	"reservation-sync-backend/internal/sync"
)

// ClientFactory builds a PMS client for one tenant's resolved settings.
type ClientFactory func(s *settings.Settings) *lobbypms.Client

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	settings     *settings.Resolver
	branches     *sync.BranchResolver
	orchestrator *sync.Orchestrator
	autoCancel   *sync.AutoCanceller
	mapper       *sync.Mapper
	webpush      *webpush.Options
	newClient    ClientFactory
	log          *zap.SugaredLogger
}

// NewHandler creates a new API handler.
func NewHandler(
	st store.Store,
	res *settings.Resolver,
	branches *sync.BranchResolver,
	orchestrator *sync.Orchestrator,
	autoCancel *sync.AutoCanceller,
	mapper *sync.Mapper,
	webpushOptions *webpush.Options,
	newClient ClientFactory,
	log *zap.SugaredLogger,
) *Handler {
	return &Handler{
		store:        st,
		settings:     res,
		branches:     branches,
		orchestrator: orchestrator,
		autoCancel:   autoCancel,
		mapper:       mapper,
		webpush:      webpushOptions,
		newClient:    newClient,
		log:          log,
	}
}
