// Package store implements the scan state store and dispatch engine: the
// persistent lifecycle of a scan (QUEUED → PENDING → FINISHED/FAILED), the
// lease-based dispatch protocol, idempotent intake, and the report-dispatch
// gating logic.
package store

import (
	"database/sql"
	"errors"
)

// Error kinds surfaced by the core, translated to HTTP status codes at the
// gateway boundary rather than leaking low-level database errors.
var (
	ErrDuplicateScan   = errors.New("a scan for this name and version already exists")
	ErrNotFound        = errors.New("scan not found")
	ErrWrongState      = errors.New("operation not allowed in the scan's current state")
	ErrNotOwned        = errors.New("caller does not hold the scan's lease")
	ErrAlreadyReported = errors.New("scan has already been reported")
	ErrUnknownRule     = errors.New("submit references a rule outside the current ruleset")
)

// translateNotFound maps the database's "no rows" signal to ErrNotFound so
// callers never see sql.ErrNoRows directly.
func translateNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
