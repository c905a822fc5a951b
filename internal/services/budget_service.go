package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kakeibo/internal/cloud"
	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

// ErrCloudUnavailable is returned by operations that cannot degrade to
// local-only behavior, such as a forced resync.
var ErrCloudUnavailable = errors.New("cloud document store unavailable")

type (
	// BudgetLocalStore is the local half of the budget map.
	BudgetLocalStore interface {
		GetBudget(ctx context.Context, key string) (*core.BudgetSetting, error)
		UpsertBudget(ctx context.Context, b core.BudgetSetting) error
		ListBudgets(ctx context.Context) (map[string]core.BudgetSetting, error)
		ListBudgetsBySite(ctx context.Context, siteID string) (map[string]core.BudgetSetting, error)
		ReplaceAllBudgets(ctx context.Context, budgets map[string]core.BudgetSetting) error
	}

	// BudgetSyncPublisher queues a failed cloud write for a later retry by
	// the sync worker.
	BudgetSyncPublisher interface {
		PublishBudgetSync(ctx context.Context, key string) error
	}

	// BudgetService maintains the (year, month, site) → settings map:
	// local writes are authoritative for the caller, the cloud mirror is
	// kept up opportunistically, and on load the cloud wins per key.
	BudgetService struct {
		local         BudgetLocalStore
		remote        cloud.DocumentStore // nil when running offline
		publisher     BudgetSyncPublisher // nil when AMQP is not configured
		remoteTimeout time.Duration
	}
)

const defaultRemoteTimeout = 5 * time.Second

func NewBudgetService(local BudgetLocalStore, remote cloud.DocumentStore, publisher BudgetSyncPublisher) *BudgetService {
	return &BudgetService{
		local:         local,
		remote:        remote,
		publisher:     publisher,
		remoteTimeout: defaultRemoteTimeout,
	}
}

// Get returns the setting for one month and site, or nil when none is
// stored. Absence is normal; the UI supplies display defaults.
func (s *BudgetService) Get(ctx context.Context, year, month int, siteID string) (*core.BudgetSetting, error) {
	b, err := s.local.GetBudget(ctx, core.BudgetKey(year, month, siteID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

// Update writes the setting locally, then mirrors it to the cloud. Only a
// local failure is an error: a just-entered budget value must never be lost
// to a network fault, so a failed cloud write is logged, recorded in the
// result and queued for retry, while the caller still sees success.
func (s *BudgetService) Update(ctx context.Context, b core.BudgetSetting) (core.SyncResult, error) {
	res := core.SyncResult{Local: core.SyncSkipped, Remote: core.SyncSkipped}

	if err := b.Validate(); err != nil {
		return res, err
	}

	if err := s.local.UpsertBudget(ctx, b); err != nil {
		res.Local = core.SyncError
		return res, fmt.Errorf("save budget locally: %w", err)
	}
	res.Local = core.SyncOK

	slog.InfoContext(ctx, "Budget setting saved",
		"key", b.Key(),
		"monthly_budget", b.MonthlyBudget,
		"savings_goal", b.SavingsGoal)

	if s.remote == nil {
		return res, nil
	}

	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()
	if err := s.remote.SetBudget(rctx, b); err != nil {
		res.Remote = core.SyncError
		slog.WarnContext(ctx, "Cloud budget write failed, local value kept",
			"key", b.Key(),
			"error", err)
		s.queueRetry(ctx, b.Key())
		return res, nil
	}
	res.Remote = core.SyncOK
	return res, nil
}

func (s *BudgetService) queueRetry(ctx context.Context, key string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBudgetSync(ctx, key); err != nil {
		slog.ErrorContext(ctx, "Failed to queue budget sync retry",
			"key", key,
			"error", err)
	}
}

// LoadAll returns the merged budget map: the local map as base with cloud
// entries overlaid per key, cloud authoritative where both exist. The
// merged result is written back to local storage. An unreachable cloud
// degrades silently to the local map.
func (s *BudgetService) LoadAll(ctx context.Context) (map[string]core.BudgetSetting, core.SyncResult, error) {
	res := core.SyncResult{Local: core.SyncSkipped, Remote: core.SyncSkipped}

	local, err := s.local.ListBudgets(ctx)
	if err != nil {
		res.Local = core.SyncError
		return nil, res, fmt.Errorf("load local budgets: %w", err)
	}
	res.Local = core.SyncOK

	if s.remote == nil {
		return local, res, nil
	}

	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()
	remote, err := s.remote.ListBudgets(rctx)
	if err != nil {
		res.Remote = core.SyncError
		slog.WarnContext(ctx, "Cloud budget load failed, using local map only", "error", err)
		return local, res, nil
	}
	res.Remote = core.SyncOK

	merged := make(map[string]core.BudgetSetting, len(local)+len(remote))
	for k, v := range local {
		merged[k] = v
	}
	for k, v := range remote {
		merged[k] = v
	}

	if err := s.local.ReplaceAllBudgets(ctx, merged); err != nil {
		// The merge itself stands; only the write-back failed.
		slog.WarnContext(ctx, "Failed to persist merged budget map", "error", err)
	}

	slog.InfoContext(ctx, "Budget map loaded",
		"local_entries", len(local),
		"cloud_entries", len(remote),
		"merged_entries", len(merged))

	return merged, res, nil
}

// ForceResync discards the local map and replaces it with the cloud map
// verbatim, recovering from local drift. With the cloud unreachable this
// changes nothing and reports failure.
func (s *BudgetService) ForceResync(ctx context.Context) (core.SyncResult, error) {
	res := core.SyncResult{Local: core.SyncSkipped, Remote: core.SyncSkipped}

	if s.remote == nil {
		return res, ErrCloudUnavailable
	}

	rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()
	remote, err := s.remote.ListBudgets(rctx)
	if err != nil {
		res.Remote = core.SyncError
		return res, fmt.Errorf("%w: %w", ErrCloudUnavailable, err)
	}
	res.Remote = core.SyncOK

	if err := s.local.ReplaceAllBudgets(ctx, remote); err != nil {
		res.Local = core.SyncError
		return res, fmt.Errorf("replace local budgets: %w", err)
	}
	res.Local = core.SyncOK

	slog.InfoContext(ctx, "Budget map force-resynced from cloud", "entries", len(remote))
	return res, nil
}

// ListBySite returns every stored setting for one site, preferring the
// cloud view and falling back to the local map when offline.
func (s *BudgetService) ListBySite(ctx context.Context, siteID string) (map[string]core.BudgetSetting, error) {
	if s.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
		defer cancel()
		remote, err := s.remote.QueryBudgetsBySite(rctx, siteID)
		if err == nil {
			return remote, nil
		}
		slog.WarnContext(ctx, "Cloud site query failed, using local map", "site_id", siteID, "error", err)
	}
	return s.local.ListBudgetsBySite(ctx, siteID)
}
