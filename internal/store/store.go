package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("store: database handle is required")

// Store groups the typed stores over one database handle.
type Store struct {
	db *gorm.DB
}

// New wraps the provided gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Store{db: db}, nil
}

// Users returns the user store bound to this handle.
func (s *Store) Users() *UserStore {
	return &UserStore{crud: crud[User]{db: s.db}}
}

// Repositories returns the repository store bound to this handle.
func (s *Store) Repositories() *RepositoryStore {
	return &RepositoryStore{crud: crud[Repository]{db: s.db}}
}

// Tags returns the tag store bound to this handle.
func (s *Store) Tags() *TagStore {
	return &TagStore{crud: crud[Tag]{db: s.db}}
}

// WithTx runs fn inside a single transaction. Stores obtained from the argument share it;
// returning an error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
	return translateError(err)
}
