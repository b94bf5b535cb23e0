// Package rules holds the coordinator's in-memory ruleset snapshot: the
// (commit_hash, rule_names[]) tuple that dispatch stamps onto every scan it
// hands out. The snapshot is fetched from an external rules repository and
// refreshed on a schedule or on demand; dispatch only ever reads the current
// snapshot, never the repository directly.
package rules

import "sync/atomic"

// Snapshot is the authoritative ruleset at a point in time.
type Snapshot struct {
	CommitHash string
	RuleNames  []string
}

// Provider holds the current Snapshot behind an atomic pointer so dispatch
// can read it without locking, while refresh swaps it in one step.
type Provider struct {
	current atomic.Pointer[Snapshot]
}

// NewProvider returns a Provider seeded with an empty snapshot. Callers
// should run Refresher.Refresh before serving traffic.
func NewProvider() *Provider {
	p := &Provider{}
	p.current.Store(&Snapshot{})
	return p
}

// Current returns the latest snapshot. Safe for concurrent use.
func (p *Provider) Current() Snapshot {
	return *p.current.Load()
}

// set swaps in a new snapshot atomically.
func (p *Provider) set(s Snapshot) {
	p.current.Store(&s)
}
