// Package gormstore is the MySQL-backed store implementation.
package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"sendpesa/internal/store"
)

// Store implements store.Store on top of a gorm DB handle.
type Store struct {
	db *gorm.DB
}

// New wraps a gorm DB handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Users() store.UserRepo      { return &userRepo{db: s.db} }
func (s *Store) Journal() store.JournalRepo { return &journalRepo{db: s.db} }
func (s *Store) Cards() store.CardRepo      { return &cardRepo{db: s.db} }
func (s *Store) Outbox() store.OutboxRepo   { return &outboxRepo{db: s.db} }

// Atomic runs fn inside a single database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// mapErr translates gorm sentinels into store sentinels.
func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.ErrDuplicate
	}
	return err
}
