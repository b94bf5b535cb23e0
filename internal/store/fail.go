package store

import (
	"context"
	"time"

	"github.com/scanhub-io/coordinator/internal/database"
)

// Fail applies a worker-reported failure, transitioning PENDING → FAILED.
// Same ownership precondition as Submit.
func (s *Store) Fail(ctx context.Context, scanID, actor, reason string) error {
	now := time.Now().UTC()
	return s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		affected, err := tx.Exec(ctx,
			`UPDATE scans
			    SET status = 'FAILED', finished_at = ?, finished_by = ?, fail_reason = ?
			  WHERE scan_id = ? AND status = 'PENDING' AND pending_by = ?`,
			now, actor, reason, scanID, actor)
		if err != nil {
			return err
		}
		if affected == 0 {
			return s.disambiguateTransition(ctx, tx, scanID, actor)
		}
		return nil
	})
}
