package store

import (
	"github.com/scanhub-io/coordinator/internal/database"
)

// Store is the scan state store and dispatch engine, backed by a
// database.DB. It holds no in-process locks; every critical section runs
// inside a single database transaction.
type Store struct {
	db database.DB
}

// New wraps db in a Store. db is an explicit dependency — never a package
// singleton — so tests can inject a sqlite-backed fixture.
func New(db database.DB) *Store {
	return &Store{db: db}
}
