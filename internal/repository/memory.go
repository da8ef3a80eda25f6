package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-process store used when no database is
// configured. Data lives for the lifetime of the process.
type MemoryRepository struct {
	mu     sync.RWMutex
	promos map[string]PromoCode
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		promos: make(map[string]PromoCode),
		now:    time.Now,
	}
}

func (r *MemoryRepository) CreatePromoCode(_ context.Context, promo PromoCode) (PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.promos[promo.Name]; ok {
		return PromoCode{}, fmt.Errorf("create promo code %q: %w", promo.Name, ErrDuplicate)
	}

	promo.Restrictions = append([]byte(nil), ensureJSON(promo.Restrictions, "[]")...)
	promo.CreatedAt = r.now().UTC()
	r.promos[promo.Name] = promo

	return promo, nil
}

func (r *MemoryRepository) GetPromoCode(_ context.Context, name string) (PromoCode, error) {
	r.mu.RLock()
	promo, ok := r.promos[name]
	r.mu.RUnlock()

	if !ok {
		return PromoCode{}, fmt.Errorf("get promo code %q: %w", name, ErrNotFound)
	}
	return promo, nil
}

func (r *MemoryRepository) ListPromoCodes(_ context.Context) ([]PromoCode, error) {
	r.mu.RLock()
	promos := make([]PromoCode, 0, len(r.promos))
	for _, promo := range r.promos {
		promos = append(promos, promo)
	}
	r.mu.RUnlock()

	sort.Slice(promos, func(i, j int) bool {
		return promos[i].Name < promos[j].Name
	})

	return promos, nil
}
