// Package memory is a mutex-guarded in-memory store.Store used by tests.
// Atomic snapshots the whole state and restores it when fn fails, so
// all-or-nothing behaviour matches the database-backed store.
package memory

import (
	"context"
	"sync"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

type state struct {
	mu sync.Mutex

	users  map[uint]*domain.User
	txns   map[uint]*domain.Transaction
	cards  map[uint]*domain.VirtualCard
	outbox map[uint]*domain.OutboxEvent

	nextUserID  uint
	nextTxnID   uint
	nextCardID  uint
	nextEventID uint
}

// Store implements store.Store in memory.
type Store struct {
	st *state
	// inTx marks a session handed to an Atomic callback; it must not
	// re-acquire the state lock.
	inTx bool
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{st: &state{
		users:  make(map[uint]*domain.User),
		txns:   make(map[uint]*domain.Transaction),
		cards:  make(map[uint]*domain.VirtualCard),
		outbox: make(map[uint]*domain.OutboxEvent),
	}}
}

func (s *Store) Users() store.UserRepo      { return &userRepo{s} }
func (s *Store) Journal() store.JournalRepo { return &journalRepo{s} }
func (s *Store) Cards() store.CardRepo      { return &cardRepo{s} }
func (s *Store) Outbox() store.OutboxRepo   { return &outboxRepo{s} }

// lock acquires the state lock unless this store is already inside Atomic.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.st.mu.Lock()
	return s.st.mu.Unlock
}

// Atomic serializes against all other operations and rolls the state back
// when fn fails.
func (s *Store) Atomic(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	snap := s.st.snapshot()
	if err := fn(&Store{st: s.st, inTx: true}); err != nil {
		s.st.restore(snap)
		return err
	}
	return nil
}

func (st *state) snapshot() *state {
	snap := &state{
		users:       make(map[uint]*domain.User, len(st.users)),
		txns:        make(map[uint]*domain.Transaction, len(st.txns)),
		cards:       make(map[uint]*domain.VirtualCard, len(st.cards)),
		outbox:      make(map[uint]*domain.OutboxEvent, len(st.outbox)),
		nextUserID:  st.nextUserID,
		nextTxnID:   st.nextTxnID,
		nextCardID:  st.nextCardID,
		nextEventID: st.nextEventID,
	}
	for id, u := range st.users {
		cp := *u
		snap.users[id] = &cp
	}
	for id, t := range st.txns {
		snap.txns[id] = copyTxn(t)
	}
	for id, c := range st.cards {
		cp := *c
		snap.cards[id] = &cp
	}
	for id, e := range st.outbox {
		cp := *e
		snap.outbox[id] = &cp
	}
	return snap
}

func (st *state) restore(snap *state) {
	st.users = snap.users
	st.txns = snap.txns
	st.cards = snap.cards
	st.outbox = snap.outbox
	st.nextUserID = snap.nextUserID
	st.nextTxnID = snap.nextTxnID
	st.nextCardID = snap.nextCardID
	st.nextEventID = snap.nextEventID
}

func copyTxn(t *domain.Transaction) *domain.Transaction {
	cp := *t
	if t.Metadata != nil {
		cp.Metadata = make(domain.JSONMap, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	if t.ExchangeRate != nil {
		rate := *t.ExchangeRate
		cp.ExchangeRate = &rate
	}
	if t.RecipientID != nil {
		id := *t.RecipientID
		cp.RecipientID = &id
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
