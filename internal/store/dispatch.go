package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/scanhub-io/coordinator/internal/database"
	"github.com/scanhub-io/coordinator/internal/rules"
	"github.com/scanhub-io/coordinator/models"
)

// claimQuery identifies the single best candidate row: QUEUED scans, or
// PENDING scans whose lease has expired (pending_at older than the cutoff).
// QUEUED rows sort first (oldest queued_at first); expired PENDING rows
// follow (oldest pending_at first, i.e. oldest reclaim first); scan_id
// breaks ties. The boolean ORDER BY expression is valid, unchanged SQL on
// both Postgres and SQLite.
const claimQuery = `
	SELECT scan_id FROM scans
	WHERE status = 'QUEUED' OR (status = 'PENDING' AND pending_at < ?)
	ORDER BY (status = 'QUEUED') DESC, COALESCE(pending_at, queued_at) ASC, scan_id ASC
	LIMIT 1`

// pgLockSuffix is appended to claimQuery on Postgres only: SKIP LOCKED lets
// concurrent dispatchers each claim a distinct row without blocking on one
// another. SQLite has no equivalent syntax; BEGIN IMMEDIATE's whole-database
// write lock (see sqlite.go's WithTx) gives the same single-winner guarantee
// there instead.
const pgLockSuffix = " FOR UPDATE SKIP LOCKED"

// ClaimNext atomically promotes one QUEUED-or-lease-expired scan to
// PENDING, stamps the caller as its lease holder and the given ruleset
// snapshot's commit hash, and returns the full job the caller should hand
// to a worker. Returns (nil, nil) when no candidate exists; dispatch never
// blocks waiting for work.
func (s *Store) ClaimNext(ctx context.Context, actor string, now time.Time, jobTimeout time.Duration, snapshot rules.Snapshot) (*models.Scan, error) {
	var claimed *models.Scan

	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		query := claimQuery
		if s.db.Driver() == "postgres" {
			query += pgLockSuffix
		}

		cutoff := now.Add(-jobTimeout)
		var scanID string
		if err := tx.Get(ctx, &scanID, query, cutoff); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		affected, err := tx.Exec(ctx,
			`UPDATE scans SET status = 'PENDING', pending_at = ?, pending_by = ?, commit_hash = ? WHERE scan_id = ?`,
			now, actor, snapshot.CommitHash, scanID)
		if err != nil {
			return err
		}
		if affected == 0 {
			// The UPDATE matches on scan_id alone, so zero rows means the
			// selected row no longer exists; report no work rather than
			// an error.
			return nil
		}

		scan, err := s.getScanTx(ctx, tx, scanID)
		if err != nil {
			return err
		}
		urls, err := s.downloadURLsTx(ctx, tx, scanID)
		if err != nil {
			return err
		}
		scan.URLs = urls
		scan.RuleNames = snapshot.RuleNames
		claimed = scan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
