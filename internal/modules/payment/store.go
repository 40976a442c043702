// README: Payment store backed by PostgreSQL; settlement and refund commit with the order in one transaction.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dishpatch/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// UpsertPending creates the order's payment row or refreshes the pending one.
// The unique order_id index guarantees a single row per order; a settled row
// is never overwritten.
func (s *Store) UpsertPending(ctx context.Context, p *Payment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payments (
			id, order_id, reference, provider_ref, authorization_url,
			amount, currency, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', NOW(), NOW())
		ON CONFLICT (order_id) DO UPDATE
		SET reference = EXCLUDED.reference,
		    provider_ref = EXCLUDED.provider_ref,
		    authorization_url = EXCLUDED.authorization_url,
		    amount = EXCLUDED.amount,
		    updated_at = NOW()
		WHERE payments.status = 'pending'`,
		string(p.ID),
		string(p.OrderID),
		p.Reference,
		p.ProviderRef,
		p.AuthorizationURL,
		p.Amount.Amount,
		p.Amount.Currency,
	)
	return err
}

func (s *Store) GetByOrder(ctx context.Context, orderID types.ID) (*Payment, error) {
	return s.get(ctx, `WHERE order_id = $1`, string(orderID))
}

func (s *Store) GetByReference(ctx context.Context, reference string) (*Payment, error) {
	return s.get(ctx, `WHERE reference = $1`, reference)
}

func (s *Store) get(ctx context.Context, where string, arg any) (*Payment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, order_id, reference, provider_ref, authorization_url,
		       amount, currency, status, created_at, updated_at
		FROM payments `+where, arg,
	)

	var p Payment
	var providerRef, authURL sql.NullString
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Reference, &providerRef, &authURL,
		&p.Amount.Amount, &p.Amount.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ProviderRef = providerRef.String
	p.AuthorizationURL = authURL.String
	return &p, nil
}

// Settle transitions a pending payment to successful or failed and, on
// success, advances the still-pending order to accepted with a history entry.
// Both writes commit in one transaction. Returns false when the payment was
// no longer pending, which makes webhook replays a no-op.
func (s *Store) Settle(ctx context.Context, reference string, success bool) (bool, error) {
	target := StatusFailed
	if success {
		target = StatusSuccessful
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orderID string
	err = tx.QueryRow(ctx, `
		UPDATE payments
		SET status = $1, updated_at = NOW()
		WHERE reference = $2 AND status = 'pending'
		RETURNING order_id`,
		string(target), reference,
	).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	orderPayment := "failed"
	if success {
		orderPayment = "successful"
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2`,
		orderPayment, orderID,
	); err != nil {
		return false, err
	}

	if success {
		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET status = 'accepted', status_version = status_version + 1, updated_at = NOW()
			WHERE id = $1 AND status = 'pending'`,
			orderID,
		)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() == 1 {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_history (order_id, status, actor_type, actor_id, note, created_at)
				VALUES ($1, 'accepted', 'system', NULL, 'payment confirmed', $2)`,
				orderID, time.Now(),
			); err != nil {
				return false, err
			}
		}
	}
	return true, tx.Commit(ctx)
}

// MarkRefunded flips a successful payment to refunded and cancels the order,
// in a single transaction.
func (s *Store) MarkRefunded(ctx context.Context, orderID types.ID) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = 'refunded', updated_at = NOW()
		WHERE order_id = $1 AND status = 'successful'`,
		string(orderID),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'refunded',
		    status = 'cancelled',
		    status_version = status_version + 1,
		    delivery_code = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'cancelled'`,
		string(orderID),
	); err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_history (order_id, status, actor_type, actor_id, note, created_at)
		VALUES ($1, 'cancelled', 'system', NULL, 'payment refunded', $2)`,
		string(orderID), time.Now(),
	); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
