package store

import (
	"context"
)

// ReconcileRules inserts names new to the current ruleset snapshot and
// deletes rows for removed names that no scan's rule links still reference,
// keeping referenced ones as historical.
func (s *Store) ReconcileRules(ctx context.Context, ruleNames []string) error {
	existing, err := s.ruleNameSet(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(ruleNames))
	for _, name := range ruleNames {
		wanted[name] = true
		if !existing[name] {
			if _, err := s.db.Exec(ctx, `INSERT INTO rules (name) VALUES (?)`, name); err != nil {
				return err
			}
		}
	}

	for name := range existing {
		if wanted[name] {
			continue
		}
		referenced, err := s.ruleReferenced(ctx, name)
		if err != nil {
			return err
		}
		if referenced {
			continue
		}
		if _, err := s.db.Exec(ctx, `DELETE FROM rules WHERE name = ?`, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ruleNameSet(ctx context.Context) (map[string]bool, error) {
	var names []string
	if err := s.db.Select(ctx, &names, `SELECT name FROM rules`); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

func (s *Store) ruleReferenced(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.Get(ctx, &count,
		`SELECT COUNT(*) FROM package_rules pr JOIN rules r ON r.id = pr.rule_id WHERE r.name = ?`, name)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ruleIDsForNames resolves rule names to ids, returning ErrUnknownRule if
// any name is not in the current rules table.
func (s *Store) ruleIDsForNames(ctx context.Context, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		var id int64
		err := s.db.Get(ctx, &id, `SELECT id FROM rules WHERE name = ?`, name)
		if err != nil {
			return nil, ErrUnknownRule
		}
		ids = append(ids, id)
	}
	return ids, nil
}
