package store

import (
	"context"

	"github.com/scanhub-io/coordinator/internal/database"
	"github.com/scanhub-io/coordinator/models"
)

// getScanTx loads a single scan row by id within tx. Returns ErrNotFound if
// no such scan exists.
func (s *Store) getScanTx(ctx context.Context, tx database.Queryer, scanID string) (*models.Scan, error) {
	var scan models.Scan
	err := tx.Get(ctx, &scan, `SELECT `+scanColumns+` FROM scans WHERE scan_id = ?`, scanID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &scan, nil
}

// GetScan loads a scan by id, including its download URLs and (if
// FINISHED) its matched rule names, outside of any transaction.
func (s *Store) GetScan(ctx context.Context, scanID string) (*models.Scan, error) {
	scan, err := s.getScanTx(ctx, s.db, scanID)
	if err != nil {
		return nil, err
	}
	urls, err := s.downloadURLsTx(ctx, s.db, scanID)
	if err != nil {
		return nil, err
	}
	scan.URLs = urls

	names, err := s.matchedRuleNamesTx(ctx, s.db, scanID)
	if err != nil {
		return nil, err
	}
	scan.RuleNames = names
	return scan, nil
}

// downloadURLsTx returns the ordered list of download URLs for a scan.
func (s *Store) downloadURLsTx(ctx context.Context, q database.Queryer, scanID string) ([]string, error) {
	var urls []string
	err := q.Select(ctx, &urls, `SELECT url FROM download_urls WHERE scan_id = ? ORDER BY id ASC`, scanID)
	return urls, err
}

// matchedRuleNamesTx returns the rule names linked to a scan (populated
// only after a successful submit).
func (s *Store) matchedRuleNamesTx(ctx context.Context, q database.Queryer, scanID string) ([]string, error) {
	var names []string
	err := q.Select(ctx, &names,
		`SELECT r.name FROM package_rules pr JOIN rules r ON r.id = pr.rule_id WHERE pr.scan_id = ? ORDER BY r.name ASC`,
		scanID)
	return names, err
}

// scanByNameVersionTx loads a scan by its (name, version) key.
func (s *Store) scanByNameVersionTx(ctx context.Context, q database.Queryer, name, version string) (*models.Scan, error) {
	var scan models.Scan
	err := q.Get(ctx, &scan, `SELECT `+scanColumns+` FROM scans WHERE name = ? AND version = ?`, normalizeName(name), version)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &scan, nil
}
