package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Reconciler persists the rule-name side of a refreshed snapshot: new names
// are inserted, removed names are deleted unless still referenced by a past
// scan's rule links.
type Reconciler interface {
	ReconcileRules(ctx context.Context, ruleNames []string) error
}

// Refresher periodically pulls a Snapshot from Client and swaps it into a
// Provider, reconciling the rules table alongside it. Lease reclaim has no
// equivalent background sweeper (it's opportunistic, folded into dispatch's
// claim query), but the ruleset does need a clock-driven refresh since
// nothing else would ever re-pull it once running.
type Refresher struct {
	provider   *Provider
	client     *Client
	reconciler Reconciler
	cron       *cron.Cron
}

// NewRefresher wires a Provider to the Client that feeds it and the store
// that reconciles rule rows.
func NewRefresher(provider *Provider, client *Client, reconciler Reconciler) *Refresher {
	return &Refresher{
		provider:   provider,
		client:     client,
		reconciler: reconciler,
		cron:       cron.New(),
	}
}

// Refresh fetches the current snapshot, reconciles the rules table, and
// swaps the in-memory snapshot. A failed fetch returns an error but leaves
// the existing snapshot in place, still serving.
func (r *Refresher) Refresh(ctx context.Context) error {
	snap, err := r.client.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("rules: refresh failed, keeping stale snapshot: %w", err)
	}
	if err := r.reconciler.ReconcileRules(ctx, snap.RuleNames); err != nil {
		return fmt.Errorf("rules: reconciling rules table: %w", err)
	}
	r.provider.set(snap)
	slog.Info("ruleset snapshot refreshed", "commit", snap.CommitHash, "rule_count", len(snap.RuleNames))
	return nil
}

// Start performs an initial synchronous refresh, then schedules refreshes
// at the given cron spec (typically built from RULES_REFRESH_INTERVAL as
// "@every <dur>"). A failed initial refresh is logged as a warning and
// startup proceeds with the existing (initially empty) snapshot; only an
// invalid cron spec is returned as an error.
func (r *Refresher) Start(ctx context.Context, cronSpec string) error {
	if err := r.Refresh(ctx); err != nil {
		slog.Warn("initial ruleset refresh failed", "error", err)
	}
	_, err := r.cron.AddFunc(cronSpec, func() {
		if err := r.Refresh(context.Background()); err != nil {
			slog.Warn("scheduled ruleset refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("rules: invalid refresh schedule %q: %w", cronSpec, err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the refresh scheduler.
func (r *Refresher) Stop() { r.cron.Stop() }
