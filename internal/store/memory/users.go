package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

type userRepo struct {
	s *Store
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	defer r.s.lock()()
	for _, u := range r.s.st.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: email %s", store.ErrDuplicate, user.Email)
		}
	}
	r.s.st.nextUserID++
	user.ID = r.s.st.nextUserID
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().UnixMilli()
	}
	cp := *user
	r.s.st.users[user.ID] = &cp
	return nil
}

func (r *userRepo) ByID(ctx context.Context, id uint) (*domain.User, error) {
	defer r.s.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.st.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: email %s", store.ErrNotFound, email)
}

func (r *userRepo) ByPhone(ctx context.Context, phone string) (*domain.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.st.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: phone %s", store.ErrNotFound, phone)
}

func (r *userRepo) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	defer r.s.lock()()
	all := make([]domain.User, 0, len(r.s.st.users))
	for _, u := range r.s.st.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *userRepo) SetHasCard(ctx context.Context, userID uint, hasCard bool) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.HasCard = hasCard
	return nil
}

func (r *userRepo) Credit(ctx context.Context, userID uint, currency domain.Currency, amount decimal.Decimal) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	setBalance(u, currency, u.Balance(currency).Add(amount))
	return nil
}

func (r *userRepo) Debit(ctx context.Context, userID uint, currency domain.Currency, amount decimal.Decimal) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	balance := u.Balance(currency)
	if balance.LessThan(amount) {
		return store.ErrInsufficientFunds
	}
	setBalance(u, currency, balance.Sub(amount))
	return nil
}

func (r *userRepo) Adjust(ctx context.Context, userID uint, currency domain.Currency, delta decimal.Decimal) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	setBalance(u, currency, u.Balance(currency).Add(delta))
	return nil
}

func setBalance(u *domain.User, currency domain.Currency, balance decimal.Decimal) {
	if currency == domain.CurrencyKES {
		u.BalanceKES = balance
		return
	}
	u.BalanceUSD = balance
}
