package models

// Rule is a named entry in the detector ruleset (YARA-style rule name),
// globally unique by Name. The set is reconciled to match the ruleset
// provider's snapshot at startup and on refresh.
type Rule struct {
	ID   int64  `json:"id"   db:"id"`
	Name string `json:"name" db:"name"`
}
