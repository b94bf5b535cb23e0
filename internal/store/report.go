package store

import (
	"context"
	"time"

	"github.com/scanhub-io/coordinator/internal/database"
	"github.com/scanhub-io/coordinator/models"
)

// MarkReported compare-and-sets reported_at from NULL to now and
// reported_by to actor on a FINISHED scan. Returns ErrNotFound, ErrWrongState
// (not FINISHED), or ErrAlreadyReported if the CAS fails because another
// caller already reported it.
func (s *Store) MarkReported(ctx context.Context, scanID, actor string, now time.Time) (*models.Scan, error) {
	var scan *models.Scan
	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		affected, err := tx.Exec(ctx,
			`UPDATE scans SET reported_at = ?, reported_by = ? WHERE scan_id = ? AND status = 'FINISHED' AND reported_at IS NULL`,
			now, actor, scanID)
		if err != nil {
			return err
		}
		if affected == 0 {
			existing, err := s.getScanTx(ctx, tx, scanID)
			if err != nil {
				return err
			}
			if existing.Status != "FINISHED" {
				return ErrWrongState
			}
			return ErrAlreadyReported
		}

		loaded, err := s.getScanTx(ctx, tx, scanID)
		if err != nil {
			return err
		}
		urls, err := s.downloadURLsTx(ctx, tx, scanID)
		if err != nil {
			return err
		}
		loaded.URLs = urls
		names, err := s.matchedRuleNamesTx(ctx, tx, scanID)
		if err != nil {
			return err
		}
		loaded.RuleNames = names
		scan = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scan, nil
}

// UndoReported clears reported_at/reported_by, restoring eligibility to
// report again. Called when the outbound reporter call fails after the CAS
// already succeeded: a failed return must leave the scan
// reportable, never silently stuck.
func (s *Store) UndoReported(ctx context.Context, scanID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE scans SET reported_at = NULL, reported_by = NULL WHERE scan_id = ?`, scanID)
	return err
}

// GetScanByNameVersion loads a scan by its (name, version) key, used by the
// submit and fail handlers and by the reporter entry point (addressed by
// name in the HTTP path).
func (s *Store) GetScanByNameVersion(ctx context.Context, name, version string) (*models.Scan, error) {
	scan, err := s.scanByNameVersionTx(ctx, s.db, name, version)
	if err != nil {
		return nil, err
	}
	urls, err := s.downloadURLsTx(ctx, s.db, scan.ScanID)
	if err != nil {
		return nil, err
	}
	scan.URLs = urls
	names, err := s.matchedRuleNamesTx(ctx, s.db, scan.ScanID)
	if err != nil {
		return nil, err
	}
	scan.RuleNames = names
	return scan, nil
}
