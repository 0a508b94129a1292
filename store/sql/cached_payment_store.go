package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-onetouch/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const paymentCacheKeyPrefix = "go-onetouch::payment::v1"

// CachedPaymentStore serves payment reads through go-repository-cache and
// drops the cached entry on every write.
type CachedPaymentStore struct {
	base  core.PaymentStore
	cache repositorycache.CacheService
}

func NewCachedPaymentStore(base core.PaymentStore, cacheService repositorycache.CacheService) (*CachedPaymentStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base payment store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: payment cache service is required")
	}
	return &CachedPaymentStore{base: base, cache: cacheService}, nil
}

// PaymentCacheKey returns go-onetouch::payment::v1::<payment id> with the id
// URL-path escaped.
func PaymentCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &core.InvalidInputError{Field: "payment_id", Reason: "is required"}
	}
	return paymentCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedPaymentStore) Create(ctx context.Context, payment core.Payment) (core.Payment, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: cached payment store is not configured")
	}
	created, err := s.base.Create(ctx, payment)
	if err != nil {
		return core.Payment{}, err
	}
	if err := s.invalidate(ctx, created.ID); err != nil {
		return core.Payment{}, err
	}
	return created, nil
}

func (s *CachedPaymentStore) Get(ctx context.Context, id string) (core.Payment, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: cached payment store is not configured")
	}
	cacheKey, err := PaymentCacheKey(id)
	if err != nil {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	payment, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Payment, error) {
		fetched, fetchErr := s.base.Get(ctx, strings.TrimSpace(id))
		if fetchErr != nil {
			return core.Payment{}, fetchErr
		}
		return core.ClonePayment(fetched), nil
	})
	if err != nil {
		return core.Payment{}, err
	}
	return core.ClonePayment(payment), nil
}

func (s *CachedPaymentStore) Update(ctx context.Context, payment core.Payment) (core.Payment, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: cached payment store is not configured")
	}
	updated, err := s.base.Update(ctx, payment)
	if invalidateErr := s.invalidate(ctx, payment.ID); invalidateErr != nil && err == nil {
		return core.Payment{}, invalidateErr
	}
	if err != nil {
		return core.Payment{}, err
	}
	return updated, nil
}

func (s *CachedPaymentStore) invalidate(ctx context.Context, id string) error {
	cacheKey, err := PaymentCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
