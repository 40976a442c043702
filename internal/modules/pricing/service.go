// README: Pricing service computes delivery-fee quotes.
package pricing

import (
	"context"
	"math"

	"dishpatch/internal/types"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Quote computes the delivery fee as base + per-km, rounding distance up to
// whole kilometres. Without a rate table (or for an unknown currency) the
// fee is zero rather than failing checkout.
func (s *Service) Quote(ctx context.Context, distanceKm float64, currency string) (types.Money, error) {
	if s.store == nil {
		return types.Money{Amount: 0, Currency: currency}, nil
	}
	r, err := s.store.GetRate(ctx, currency)
	if err == ErrRateNotFound {
		return types.Money{Amount: 0, Currency: currency}, nil
	}
	if err != nil {
		return types.Money{}, err
	}
	return types.Money{Amount: quote(r, distanceKm), Currency: currency}, nil
}

func quote(r Rate, distanceKm float64) int64 {
	km := int64(math.Ceil(distanceKm))
	if km < 0 {
		km = 0
	}
	return r.BaseFee + km*r.PerKm
}
