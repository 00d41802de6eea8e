package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

type outboxRepo struct {
	s *Store
}

func (r *outboxRepo) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	defer r.s.lock()()
	r.s.st.nextEventID++
	event.ID = r.s.st.nextEventID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	cp := *event
	r.s.st.outbox[event.ID] = &cp
	return nil
}

func (r *outboxRepo) Pending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	defer r.s.lock()()
	var out []domain.OutboxEvent
	for _, e := range r.s.st.outbox {
		if e.Status == domain.OutboxPending {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *outboxRepo) Update(ctx context.Context, event *domain.OutboxEvent) error {
	defer r.s.lock()()
	if _, ok := r.s.st.outbox[event.ID]; !ok {
		return fmt.Errorf("%w: outbox event %d", store.ErrNotFound, event.ID)
	}
	cp := *event
	r.s.st.outbox[event.ID] = &cp
	return nil
}
