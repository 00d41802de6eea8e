package gormstore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

type userRepo struct {
	db *gorm.DB
}

// balanceColumn maps a currency onto its balance column.
func balanceColumn(currency domain.Currency) string {
	if currency == domain.CurrencyKES {
		return "balance_kes"
	}
	return "balance_usd"
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *userRepo) ByID(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (r *userRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (r *userRepo) ByPhone(ctx context.Context, phone string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (r *userRepo) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []domain.User
	if err := r.db.WithContext(ctx).Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepo) SetHasCard(ctx context.Context, userID uint, hasCard bool) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Update("has_card", hasCard)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Credit adds amount in a single UPDATE, so concurrent credits can never
// overwrite each other.
func (r *userRepo) Credit(ctx context.Context, userID uint, currency domain.Currency, amount decimal.Decimal) error {
	col := balanceColumn(currency)
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Update(col, gorm.Expr(col+" + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Debit subtracts amount with the balance check folded into the WHERE clause.
// A row that does not cover the amount is left untouched and the caller gets
// ErrInsufficientFunds; two concurrent debits against the same balance can
// therefore never both succeed on funds that only cover one of them.
func (r *userRepo) Debit(ctx context.Context, userID uint, currency domain.Currency, amount decimal.Decimal) error {
	col := balanceColumn(currency)
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where(fmt.Sprintf("id = ? AND %s >= ?", col), userID, amount).
		Update(col, gorm.Expr(col+" - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return store.ErrNotFound
		}
		return store.ErrInsufficientFunds
	}
	return nil
}

// Adjust applies a signed delta without the non-negative guard.
func (r *userRepo) Adjust(ctx context.Context, userID uint, currency domain.Currency, delta decimal.Decimal) error {
	col := balanceColumn(currency)
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Update(col, gorm.Expr(col+" + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
