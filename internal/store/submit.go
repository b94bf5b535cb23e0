package store

import (
	"context"
	"time"

	"github.com/scanhub-io/coordinator/internal/database"
)

// SubmitResult carries the parameters of a worker's PENDING → FINISHED
// report.
type SubmitResult struct {
	Score        int
	InspectorURL string
	RuleNames    []string
	Files        []byte
}

// Submit applies a worker-reported outcome, transitioning PENDING →
// FINISHED. Requires the scan to still be PENDING with pending_by = actor;
// returns ErrNotOwned if another worker has since reclaimed it, ErrWrongState
// if the scan was never dispatched or already terminal, ErrUnknownRule if
// any reported rule name is not in the rules table (the scan stays PENDING
// in that case, available for a later dispatch). The rules table also keeps
// rules dropped from the ruleset that past scans still reference, so such
// names are accepted rather than rejected.
func (s *Store) Submit(ctx context.Context, scanID, actor string, result SubmitResult) error {
	ruleIDs, err := s.ruleIDsForNames(ctx, result.RuleNames)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		affected, err := tx.Exec(ctx,
			`UPDATE scans
			    SET status = 'FINISHED', finished_at = ?, finished_by = ?,
			        score = ?, inspector_url = ?, files = ?
			  WHERE scan_id = ? AND status = 'PENDING' AND pending_by = ?`,
			now, actor, result.Score, result.InspectorURL, result.Files, scanID, actor)
		if err != nil {
			return err
		}
		if affected == 0 {
			return s.disambiguateTransition(ctx, tx, scanID, actor)
		}

		for _, ruleID := range ruleIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO package_rules (scan_id, rule_id) VALUES (?, ?)`, scanID, ruleID); err != nil {
				return err
			}
		}
		return nil
	})
}

// disambiguateTransition runs after a conditional UPDATE affects zero rows,
// to report the precise reason (NotFound, WrongState, or NotOwned) without
// relying on backend-specific row-locking syntax to get there atomically.
func (s *Store) disambiguateTransition(ctx context.Context, tx database.Tx, scanID, actor string) error {
	scan, err := s.getScanTx(ctx, tx, scanID)
	if err != nil {
		return err
	}
	if scan.Status != "PENDING" {
		return ErrWrongState
	}
	if scan.PendingBy == nil || *scan.PendingBy != actor {
		return ErrNotOwned
	}
	// PENDING and owned by actor, yet the UPDATE still matched nothing:
	// a concurrent writer changed it between our SELECT and UPDATE.
	return ErrWrongState
}
