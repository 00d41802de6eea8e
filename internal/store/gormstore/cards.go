package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"sendpesa/internal/domain"
)

type cardRepo struct {
	db *gorm.DB
}

func (r *cardRepo) Create(ctx context.Context, card *domain.VirtualCard) error {
	if err := r.db.WithContext(ctx).Create(card).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

// ByUser returns the user's most recent card, usable or not.
func (r *cardRepo) ByUser(ctx context.Context, userID uint) (*domain.VirtualCard, error) {
	var card domain.VirtualCard
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		First(&card).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &card, nil
}

func (r *cardRepo) Update(ctx context.Context, card *domain.VirtualCard) error {
	if err := r.db.WithContext(ctx).Save(card).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *cardRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.VirtualCard{}).
		Where("status IN ? AND expiry < ?", []domain.CardStatus{domain.CardActive, domain.CardFrozen}, now).
		Update("status", domain.CardExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
