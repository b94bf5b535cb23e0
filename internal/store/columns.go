package store

// scanColumns lists the scans table's columns in the exact order the
// models.Scan struct declares its db-tagged fields. scanRow (the Queryer.Get
// helper) scans by position, not by column name, so every query that reads
// a full Scan row must select these columns in this order.
const scanColumns = `scan_id, name, version, status, score, inspector_url, commit_hash,
	queued_at, pending_at, finished_at, reported_at,
	queued_by, pending_by, finished_by, reported_by, fail_reason, files`
