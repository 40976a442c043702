// README: Rate store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, currency string) (Rate, error) {
	row := s.db.QueryRow(ctx, `
		SELECT currency, base_fee, per_km FROM fee_rates WHERE currency = $1`,
		currency,
	)
	var r Rate
	err := row.Scan(&r.Currency, &r.BaseFee, &r.PerKm)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	return r, err
}
