package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

type journalRepo struct {
	s *Store
}

func (r *journalRepo) Append(ctx context.Context, txn *domain.Transaction) error {
	defer r.s.lock()()
	for _, existing := range r.s.st.txns {
		if existing.Reference == txn.Reference {
			return fmt.Errorf("%w: reference %s", store.ErrDuplicate, txn.Reference)
		}
	}
	r.s.st.nextTxnID++
	txn.ID = r.s.st.nextTxnID
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	r.s.st.txns[txn.ID] = copyTxn(txn)
	return nil
}

func (r *journalRepo) ByID(ctx context.Context, id uint) (*domain.Transaction, error) {
	defer r.s.lock()()
	t, ok := r.s.st.txns[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %d", store.ErrNotFound, id)
	}
	return copyTxn(t), nil
}

func (r *journalRepo) ByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	defer r.s.lock()()
	for _, t := range r.s.st.txns {
		if t.Reference == reference {
			return copyTxn(t), nil
		}
	}
	return nil, fmt.Errorf("%w: reference %s", store.ErrNotFound, reference)
}

func (r *journalRepo) Update(ctx context.Context, txn *domain.Transaction) error {
	defer r.s.lock()()
	if _, ok := r.s.st.txns[txn.ID]; !ok {
		return fmt.Errorf("%w: transaction %d", store.ErrNotFound, txn.ID)
	}
	r.s.st.txns[txn.ID] = copyTxn(txn)
	return nil
}

func (r *journalRepo) Claim(ctx context.Context, id uint, from, to domain.TransactionStatus) (bool, error) {
	defer r.s.lock()()
	t, ok := r.s.st.txns[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	if to == domain.StatusCompleted {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	return true, nil
}

func (r *journalRepo) ListByUser(ctx context.Context, userID uint, offset, limit int) ([]domain.Transaction, int64, error) {
	defer r.s.lock()()
	var all []domain.Transaction
	for _, t := range r.s.st.txns {
		if t.UserID == userID {
			all = append(all, *copyTxn(t))
		}
	}
	sortNewestFirst(all)
	return paginate(all, offset, limit)
}

func (r *journalRepo) List(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, int64, error) {
	defer r.s.lock()()
	var all []domain.Transaction
	for _, t := range r.s.st.txns {
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.From != nil && t.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && t.CreatedAt.After(*filter.To) {
			continue
		}
		all = append(all, *copyTxn(t))
	}
	sortNewestFirst(all)
	return paginate(all, filter.Offset, filter.Limit)
}

func (r *journalRepo) CompletedByUserCurrency(ctx context.Context, userID uint, currency domain.Currency) ([]domain.Transaction, error) {
	defer r.s.lock()()
	var out []domain.Transaction
	for _, t := range r.s.st.txns {
		if t.UserID != userID || t.Status != domain.StatusCompleted {
			continue
		}
		creditSide := t.Type == domain.TypeExchange && t.Metadata[domain.MetaTargetCurrency] == string(currency)
		if t.Currency == currency || creditSide {
			out = append(out, *copyTxn(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *journalRepo) LatestPendingByUser(ctx context.Context, userID uint, types ...domain.TransactionType) (*domain.Transaction, error) {
	defer r.s.lock()()
	var latest *domain.Transaction
	for _, t := range r.s.st.txns {
		if t.UserID != userID || t.Status != domain.StatusPending {
			continue
		}
		match := false
		for _, typ := range types {
			if t.Type == typ {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no pending transaction for user %d", store.ErrNotFound, userID)
	}
	return copyTxn(latest), nil
}

func (r *journalRepo) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	defer r.s.lock()()
	var out []domain.Transaction
	for _, t := range r.s.st.txns {
		if t.Status == domain.StatusPending && t.CreatedAt.Before(cutoff) {
			out = append(out, *copyTxn(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(txns []domain.Transaction) {
	sort.Slice(txns, func(i, j int) bool {
		if txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].ID > txns[j].ID
		}
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})
}

func paginate(all []domain.Transaction, offset, limit int) ([]domain.Transaction, int64, error) {
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
