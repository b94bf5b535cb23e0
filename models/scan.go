package models

import "time"

// Scan statuses. Stored as a Postgres enum / SQLite CHECK constraint.
const (
	StatusQueued   = "QUEUED"
	StatusPending  = "PENDING"
	StatusFinished = "FINISHED"
	StatusFailed   = "FAILED"
)

// Scan is the central entity: one malware-scan inspection task for a
// specific (name, version) package pair.
type Scan struct {
	ScanID       string     `json:"scan_id"       db:"scan_id"`
	Name         string     `json:"name"          db:"name"`
	Version      string     `json:"version"       db:"version"`
	Status       string     `json:"status"        db:"status"`
	Score        *int       `json:"score"         db:"score"`
	InspectorURL *string    `json:"inspector_url" db:"inspector_url"`
	CommitHash   *string    `json:"commit_hash"   db:"commit_hash"`
	QueuedAt     time.Time  `json:"queued_at"     db:"queued_at"`
	PendingAt    *time.Time `json:"pending_at"    db:"pending_at"`
	FinishedAt   *time.Time `json:"finished_at"   db:"finished_at"`
	ReportedAt   *time.Time `json:"reported_at"   db:"reported_at"`
	QueuedBy     string     `json:"queued_by"     db:"queued_by"`
	PendingBy    *string    `json:"pending_by"    db:"pending_by"`
	FinishedBy   *string    `json:"finished_by"   db:"finished_by"`
	ReportedBy   *string    `json:"reported_by"   db:"reported_by"`
	FailReason   *string    `json:"fail_reason"   db:"fail_reason"`
	Files        []byte     `json:"-"             db:"files"`

	// URLs and RuleNames are populated by the store alongside the scans row;
	// they are not themselves columns on the scans table.
	URLs      []string `json:"distributions,omitempty" db:"-"`
	RuleNames []string `json:"rules,omitempty"         db:"-"`
}

// DownloadURL is one artifact location associated with a scan. Deleted in
// cascade when its scan is deleted; order is not significant.
type DownloadURL struct {
	ID     int64  `json:"id"      db:"id"`
	ScanID string `json:"scan_id" db:"scan_id"`
	URL    string `json:"url"     db:"url"`
}
