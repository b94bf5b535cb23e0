package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scanhub-io/coordinator/internal/database"
)

// InsertScan atomically enqueues a new scan in QUEUED status. Name is
// normalized before the uniqueness check by trimming surrounding whitespace
// and lowercasing; separator characters ("-", "_", ".") are left as given,
// so names differing only in separators are distinct. Returns
// ErrDuplicateScan if (name, version) already exists — intake never modifies the existing scan in
// that case.
func (s *Store) InsertScan(ctx context.Context, name, version string, urls []string, actor string) (string, error) {
	name = normalizeName(name)
	if len(urls) == 0 {
		return "", fmt.Errorf("intake requires at least one distribution url")
	}

	scanID := uuid.NewString()
	now := time.Now().UTC()

	err := s.db.WithTx(ctx, func(ctx context.Context, tx database.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO scans (scan_id, name, version, status, queued_at, queued_by) VALUES (?, ?, ?, ?, ?, ?)`,
			scanID, name, version, "QUEUED", now, actor)
		if err != nil {
			return err
		}
		for _, u := range urls {
			if _, err := tx.Exec(ctx, `INSERT INTO download_urls (scan_id, url) VALUES (?, ?)`, scanID, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return "", ErrDuplicateScan
		}
		return "", err
	}
	return scanID, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
