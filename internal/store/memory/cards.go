package memory

import (
	"context"
	"fmt"
	"time"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

type cardRepo struct {
	s *Store
}

func (r *cardRepo) Create(ctx context.Context, card *domain.VirtualCard) error {
	defer r.s.lock()()
	r.s.st.nextCardID++
	card.ID = r.s.st.nextCardID
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now()
	}
	cp := *card
	r.s.st.cards[card.ID] = &cp
	return nil
}

func (r *cardRepo) ByUser(ctx context.Context, userID uint) (*domain.VirtualCard, error) {
	defer r.s.lock()()
	var latest *domain.VirtualCard
	for _, c := range r.s.st.cards {
		if c.UserID != userID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no card for user %d", store.ErrNotFound, userID)
	}
	cp := *latest
	return &cp, nil
}

func (r *cardRepo) Update(ctx context.Context, card *domain.VirtualCard) error {
	defer r.s.lock()()
	if _, ok := r.s.st.cards[card.ID]; !ok {
		return fmt.Errorf("%w: card %d", store.ErrNotFound, card.ID)
	}
	cp := *card
	r.s.st.cards[card.ID] = &cp
	return nil
}

func (r *cardRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	defer r.s.lock()()
	var n int64
	for _, c := range r.s.st.cards {
		if (c.Status == domain.CardActive || c.Status == domain.CardFrozen) && c.Expiry.Before(now) {
			c.Status = domain.CardExpired
			n++
		}
	}
	return n, nil
}
