package gormstore

import (
	"context"

	"gorm.io/gorm"

	"sendpesa/internal/domain"
)

type outboxRepo struct {
	db *gorm.DB
}

func (r *outboxRepo) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *outboxRepo) Pending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	var events []domain.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.OutboxPending).
		Order("created_at asc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *outboxRepo) Update(ctx context.Context, event *domain.OutboxEvent) error {
	return r.db.WithContext(ctx).Save(event).Error
}
