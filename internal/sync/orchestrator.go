package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"reservation-sync-backend/config"
	"reservation-sync-backend/internal/lobbypms"
	"reservation-sync-backend/internal/model"
	"reservation-sync-backend/internal/settings"
	"reservation-sync-backend/internal/store"
	"reservation-sync-backend/pkg/metrics"
)

// PMSClient is the slice of the LobbyPMS client the orchestrator needs.
type PMSClient interface {
	ListReservations(ctx context.Context, f lobbypms.ListFilters) ([]lobbypms.RawReservation, *lobbypms.PageMeta, error)
	UpdateReservationStatus(ctx context.Context, externalID, status string) error
}

// ClientFactory builds a PMS client for one tenant's resolved settings.
type ClientFactory func(s *settings.Settings) PMSClient

// Result summarizes one branch sync.
type Result struct {
	BranchID int64 `json:"branchId"`
	Synced   int   `json:"synced"`
	Errors   int   `json:"errors"`
	Skipped  bool  `json:"skipped"`
}

// Orchestrator drives the per-branch reservation sync: it resolves
// credentials, pages through the PMS listing and hands every relevant
// payload to the mapper. Branches are fully isolated from each other; one
// misconfigured tenant never blocks the rest.
type Orchestrator struct {
	store    store.Store
	settings *settings.Resolver
	branches *BranchResolver
	mapper   *Mapper
	cfg      config.SyncConfig
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger

	newClient ClientFactory

	mu      gosync.Mutex
	lastRun map[int64]time.Time
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(
	st store.Store,
	res *settings.Resolver,
	branches *BranchResolver,
	mapper *Mapper,
	cfg config.SyncConfig,
	m *metrics.Metrics,
	log *zap.SugaredLogger,
	newClient ClientFactory,
) *Orchestrator {
	return &Orchestrator{
		store:     st,
		settings:  res,
		branches:  branches,
		mapper:    mapper,
		cfg:       cfg,
		metrics:   m,
		log:       log,
		newClient: newClient,
		lastRun:   make(map[int64]time.Time),
	}
}

// SyncAll syncs every branch. Per-branch failures are logged and counted
// but never abort the run.
func (o *Orchestrator) SyncAll(ctx context.Context) []Result {
	branches, err := o.store.ListBranches(ctx, 0)
	if err != nil {
		o.log.Errorw("failed to list branches for sync", "error", err)
		o.metrics.SyncErrors.WithLabelValues("list_branches").Inc()
		return nil
	}

	results := make([]Result, 0, len(branches))
	for _, branch := range branches {
		result, err := o.SyncBranch(ctx, branch.ID)
		if err != nil {
			if errors.Is(err, settings.ErrNotConfigured) {
				o.log.Infow("skipping unconfigured branch", "branchId", branch.ID)
			} else {
				o.log.Errorw("branch sync failed", "branchId", branch.ID, "error", err)
				o.metrics.SyncErrors.WithLabelValues("branch").Inc()
			}
			results = append(results, Result{BranchID: branch.ID, Skipped: true})
			continue
		}
		results = append(results, result)
	}

	var synced, failed int
	for _, r := range results {
		synced += r.Synced
		failed += r.Errors
	}
	o.log.Infow("sync run complete", "branches", len(branches), "synced", synced, "errors", failed)
	return results
}

// SyncBranch syncs a single branch: new reservations since the last run,
// then all reservations with an upcoming or very recent check-out.
func (o *Orchestrator) SyncBranch(ctx context.Context, branchID int64) (Result, error) {
	result := Result{BranchID: branchID}

	s, err := o.settings.ForBranch(ctx, branchID)
	if err != nil {
		return result, err
	}
	if !s.SyncEnabled {
		o.log.Debugw("sync disabled for branch", "branchId", branchID)
		result.Skipped = true
		return result, nil
	}

	// Sibling branches inheriting the same organization credentials would
	// each re-sync the whole property; only the owning branch proceeds.
	if s.Inherited {
		owner, err := o.branches.OwnerForInherited(ctx, s)
		if err != nil {
			return result, err
		}
		if owner != branchID {
			o.log.Debugw("branch inherits credentials owned elsewhere",
				"branchId", branchID, "ownerBranchId", owner)
			result.Skipped = true
			return result, nil
		}
	}

	start := time.Now()
	defer func() {
		o.metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	client := o.newClient(s)

	synced, errCount, fetchOK := o.syncCreatedSince(ctx, client, s, branchID, o.sinceFor(branchID, start))
	result.Synced += synced
	result.Errors += errCount

	synced, errCount = o.syncUpcomingCheckouts(ctx, client, s, branchID)
	result.Synced += synced
	result.Errors += errCount

	// A failed listing fetch leaves the cutoff where it was; advancing it
	// would permanently skip reservations created before the failed tick.
	if fetchOK {
		o.mu.Lock()
		o.lastRun[branchID] = start
		o.mu.Unlock()
	}

	o.log.Infow("branch synced",
		"branchId", branchID, "synced", result.Synced, "errors", result.Errors,
		"took", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// sinceFor returns the creation-time cutoff for the incremental pass: the
// previous successful run, or the configured lookback window on the first
// run after startup.
func (o *Orchestrator) sinceFor(branchID int64, now time.Time) time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if last, ok := o.lastRun[branchID]; ok {
		return last
	}
	return now.Add(-time.Duration(o.cfg.WindowPastHours) * time.Hour)
}

// syncCreatedSince pages through the listing and syncs reservations created
// at or after the cutoff. The API returns pages newest-first (observed
// behavior, not a documented contract), so after enough consecutive pages
// without a single match the rest of the listing is assumed to be older
// history and the scan stops early. fetchOK reports whether every page fetch
// succeeded; the caller must not advance the incremental cutoff otherwise.
func (o *Orchestrator) syncCreatedSince(ctx context.Context, client PMSClient, s *settings.Settings, branchID int64, since time.Time) (synced, errCount int, fetchOK bool) {
	emptyStreak := 0
	totalPages := 0

	for page := 1; page <= o.cfg.MaxPages; page++ {
		items, meta, err := client.ListReservations(ctx, lobbypms.ListFilters{
			Page:    page,
			PerPage: o.cfg.PageSize,
			// Advisory server-side hint; the created timestamp is still
			// re-checked locally below.
			CreatedFrom: since,
		})
		if err != nil {
			o.log.Errorw("failed to fetch reservations page",
				"branchId", branchID, "page", page, "error", err)
			o.metrics.SyncErrors.WithLabelValues("fetch").Inc()
			return synced, errCount + 1, false
		}
		if pc := meta.PageCount(); pc > 0 {
			totalPages = pc
		}
		if len(items) == 0 {
			return synced, errCount, true
		}

		matched := 0
		for i := range items {
			raw := &items[i]
			created, err := lobbypms.ParseTimestamp(raw.CreatedAtRaw())
			if err != nil || created.Before(since) {
				continue
			}
			matched++
			if o.syncItem(ctx, raw, s, branchID) != nil {
				errCount++
			} else {
				synced++
			}
		}

		if matched == 0 {
			emptyStreak++
			if emptyStreak >= o.cfg.EmptyPageThreshold {
				return synced, errCount, true
			}
		} else {
			emptyStreak = 0
		}

		if len(items) < o.cfg.PageSize {
			return synced, errCount, true
		}
		if totalPages > 0 && page >= totalPages {
			return synced, errCount, true
		}
	}
	return synced, errCount, true
}

// syncUpcomingCheckouts refreshes every reservation checking out between
// yesterday and the configured future horizon, so status and payment changes
// on in-house guests keep flowing even for reservations created long ago.
// This pass is exhaustive up to the page cap; there is no early stop.
func (o *Orchestrator) syncUpcomingCheckouts(ctx context.Context, client PMSClient, s *settings.Settings, branchID int64) (synced, errCount int) {
	cutoff := time.Now().Add(-time.Duration(o.cfg.WindowPastHours) * time.Hour)
	cutoffDay := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.Local)
	horizon := cutoffDay.AddDate(0, 0, o.cfg.WindowFutureDays)
	totalPages := 0

	for page := 1; page <= o.cfg.MaxPages; page++ {
		items, meta, err := client.ListReservations(ctx, lobbypms.ListFilters{
			Page:         page,
			PerPage:      o.cfg.PageSize,
			CheckOutFrom: cutoffDay,
		})
		if err != nil {
			o.log.Errorw("failed to fetch checkout window page",
				"branchId", branchID, "page", page, "error", err)
			o.metrics.SyncErrors.WithLabelValues("fetch").Inc()
			return synced, errCount + 1
		}
		if pc := meta.PageCount(); pc > 0 {
			totalPages = pc
		}
		if len(items) == 0 {
			return synced, errCount
		}

		for i := range items {
			raw := &items[i]
			// The server-side filter is advisory; re-check locally.
			checkOut, err := lobbypms.ParseCalendarDate(raw.CheckOutRaw())
			if err != nil || checkOut.Before(cutoffDay) || checkOut.After(horizon) {
				continue
			}
			if o.syncItem(ctx, raw, s, branchID) != nil {
				errCount++
			} else {
				synced++
			}
		}

		if len(items) < o.cfg.PageSize {
			return synced, errCount
		}
		if totalPages > 0 && page >= totalPages {
			return synced, errCount
		}
	}
	return synced, errCount
}

// syncItem maps one payload and records a failure against the existing row
// when there is one. A payload that never produced a row leaves no history.
func (o *Orchestrator) syncItem(ctx context.Context, raw *lobbypms.RawReservation, s *settings.Settings, branchID int64) error {
	_, err := o.mapper.SyncOne(ctx, raw, s.OrganizationID, branchID)
	if err == nil {
		return nil
	}

	o.log.Errorw("failed to sync reservation",
		"branchId", branchID, "reservation", raw.ExternalID(), "error", err)
	o.metrics.SyncErrors.WithLabelValues("reservation").Inc()

	if existing, ferr := o.store.FindReservationByLobbyID(ctx, raw.ExternalID()); ferr == nil && existing != nil {
		entry := &model.ReservationSyncHistory{
			ReservationID: existing.ID,
			SyncType:      model.SyncTypeError,
			ErrorMessage:  err.Error(),
		}
		if herr := o.store.AppendSyncHistory(ctx, entry); herr != nil {
			o.log.Errorw("failed to record sync error", "reservationId", existing.ID, "error", herr)
		}
	}
	return err
}
