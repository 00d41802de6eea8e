package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

type journalRepo struct {
	db *gorm.DB
}

func (r *journalRepo) Append(ctx context.Context, txn *domain.Transaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *journalRepo) ByID(ctx context.Context, id uint) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := r.db.WithContext(ctx).First(&txn, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &txn, nil
}

func (r *journalRepo) ByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error; err != nil {
		return nil, mapErr(err)
	}
	return &txn, nil
}

func (r *journalRepo) Update(ctx context.Context, txn *domain.Transaction) error {
	res := r.db.WithContext(ctx).Save(txn)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	return nil
}

// Claim relies on the database to arbitrate: the conditional UPDATE takes the
// row lock, so a concurrent claimant blocks until the winner commits and then
// re-evaluates the status predicate against zero rows.
func (r *journalRepo) Claim(ctx context.Context, id uint, from, to domain.TransactionStatus) (bool, error) {
	updates := map[string]any{"status": to}
	if to == domain.StatusCompleted {
		updates["completed_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, mapErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *journalRepo) ListByUser(ctx context.Context, userID uint, offset, limit int) ([]domain.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Transaction{}).Where("user_id = ?", userID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txns []domain.Transaction
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (r *journalRepo) List(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Transaction{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txns []domain.Transaction
	if err := query.Order("created_at desc").Offset(filter.Offset).Limit(filter.Limit).Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// CompletedByUserCurrency includes exchange rows whose credit side targets
// the requested currency, so the recomputation sees both halves.
func (r *journalRepo) CompletedByUserCurrency(ctx context.Context, userID uint, currency domain.Currency) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.StatusCompleted).
		Where("currency = ? OR (type = ? AND JSON_UNQUOTE(JSON_EXTRACT(metadata, '$.target_currency')) = ?)",
			currency, domain.TypeExchange, string(currency)).
		Order("created_at asc").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *journalRepo) LatestPendingByUser(ctx context.Context, userID uint, types ...domain.TransactionType) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND type IN ?", userID, domain.StatusPending, types).
		Order("created_at desc").
		First(&txn).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &txn, nil
}

func (r *journalRepo) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.StatusPending, cutoff).
		Order("created_at asc").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}
