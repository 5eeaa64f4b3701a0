package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"reservation-sync-backend/config"
	"reservation-sync-backend/internal/model"
	"reservation-sync-backend/internal/settings"
	"reservation-sync-backend/internal/store"
	"reservation-sync-backend/pkg/metrics"
)

// AutoCanceller cancels confirmed, unpaid reservations whose payment
// deadline has passed. The local cancellation is authoritative; the PMS is
// told on a best-effort basis and a failure there never blocks the local
// cancel.
type AutoCanceller struct {
	store    store.Store
	settings *settings.Resolver
	cfg      config.AutoCancelConfig
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger

	newClient ClientFactory
}

// NewAutoCanceller creates an auto-cancel job.
func NewAutoCanceller(st store.Store, res *settings.Resolver, cfg config.AutoCancelConfig, m *metrics.Metrics, log *zap.SugaredLogger, newClient ClientFactory) *AutoCanceller {
	return &AutoCanceller{
		store:     st,
		settings:  res,
		cfg:       cfg,
		metrics:   m,
		log:       log,
		newClient: newClient,
	}
}

// Run performs one auto-cancel sweep and returns the number of
// reservations cancelled.
func (a *AutoCanceller) Run(ctx context.Context) int {
	now := time.Now()
	expired, err := a.store.ListExpiredPendingReservations(ctx, now)
	if err != nil {
		a.log.Errorw("failed to list expired reservations", "error", err)
		a.metrics.SyncErrors.WithLabelValues("auto_cancel").Inc()
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	cancelled := 0
	for i := range expired {
		if a.cancelOne(ctx, &expired[i], now) {
			cancelled++
		}
	}
	a.log.Infow("auto-cancel sweep complete", "expired", len(expired), "cancelled", cancelled)
	return cancelled
}

func (a *AutoCanceller) cancelOne(ctx context.Context, r *model.Reservation, now time.Time) bool {
	a.remoteCancel(ctx, r)

	if err := a.store.MarkReservationCancelled(ctx, r.ID, now, "system", a.cfg.Reason); err != nil {
		a.log.Errorw("failed to cancel reservation locally",
			"reservationId", r.ID, "error", err)
		a.metrics.SyncErrors.WithLabelValues("auto_cancel").Inc()
		return false
	}

	a.metrics.ReservationsAutoCancelled.Inc()
	a.log.Infow("reservation auto-cancelled",
		"reservationId", r.ID, "lobbyReservationId", r.LobbyReservationID,
		"deadline", r.PaymentDeadline)
	return true
}

// remoteCancel pushes the cancellation to the PMS. Any failure here is
// logged and swallowed.
func (a *AutoCanceller) remoteCancel(ctx context.Context, r *model.Reservation) {
	s, err := a.settings.ForBranch(ctx, r.BranchID)
	if err != nil {
		a.log.Warnw("cannot notify PMS of cancellation, no settings",
			"reservationId", r.ID, "branchId", r.BranchID, "error", err)
		return
	}
	client := a.newClient(s)
	if err := client.UpdateReservationStatus(ctx, r.LobbyReservationID, model.StatusCancelled); err != nil {
		a.log.Warnw("failed to cancel reservation in PMS, cancelling locally anyway",
			"reservationId", r.ID, "error", err)
	}
}
