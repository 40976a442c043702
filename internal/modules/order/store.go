// README: Order store backed by PostgreSQL; guarded updates carry the concurrency control.
package order

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

func (s *Store) Create(ctx context.Context, o *Order) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, vendor_id, rider_id, status, status_version,
			payment_status, total_amount, delivery_fee, currency,
			delivery_code, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $12
		)`,
		string(o.ID),
		string(o.CustomerID),
		string(o.VendorID),
		idPtr(o.RiderID),
		string(o.Status),
		o.StatusVersion,
		string(o.PaymentStatus),
		o.TotalAmount.Amount,
		o.DeliveryFee.Amount,
		o.TotalAmount.Currency,
		o.DeliveryCode,
		o.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, customer_id, vendor_id, rider_id, status, status_version,
		       payment_status, total_amount, delivery_fee, currency,
		       delivery_code, created_at, updated_at
		FROM orders
		WHERE id = $1`, string(id),
	)

	var o Order
	var riderID, deliveryCode sql.NullString
	var currency string

	err := row.Scan(
		&o.ID, &o.CustomerID, &o.VendorID, &riderID, &o.Status, &o.StatusVersion,
		&o.PaymentStatus, &o.TotalAmount.Amount, &o.DeliveryFee.Amount, &currency,
		&deliveryCode, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if riderID.Valid {
		r := types.ID(riderID.String)
		o.RiderID = &r
	}
	if deliveryCode.Valid {
		o.DeliveryCode = &deliveryCode.String
	}
	o.TotalAmount.Currency = currency
	o.DeliveryFee.Currency = currency
	return &o, nil
}

// Transition applies a status change with a compare-and-swap guard and writes
// the history entry in the same transaction. Returns false when the guard did
// not match (another writer won).
func (s *Store) Transition(ctx context.Context, o *Order, target Status, actor types.Actor, note string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    delivery_code = CASE WHEN $1 IN ('delivered', 'cancelled') THEN NULL ELSE delivery_code END,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(target),
		string(o.ID),
		string(o.Status),
		o.StatusVersion,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if err := appendHistoryTx(ctx, tx, &HistoryEntry{
		OrderID:   o.ID,
		Status:    target,
		ActorType: actor.Role,
		ActorID:   actorIDPtr(actor),
		Note:      note,
		CreatedAt: time.Now(),
	}); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// ClaimRider assigns the rider and flips the order to out_for_delivery in a
// single guarded update. The WHERE predicate is the entire concurrency
// control; zero affected rows means another rider won the race or the order
// was not claimable.
func (s *Store) ClaimRider(ctx context.Context, id, riderID types.ID) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET rider_id = $1,
		    status = 'out_for_delivery',
		    status_version = status_version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND rider_id IS NULL AND status IN ('accepted', 'preparing')`,
		string(riderID),
		string(id),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	rid := riderID
	if err := appendHistoryTx(ctx, tx, &HistoryEntry{
		OrderID:   id,
		Status:    StatusOutForDelivery,
		ActorType: types.RoleRider,
		ActorID:   &rid,
		Note:      "claimed",
		CreatedAt: time.Now(),
	}); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// DeclineRider lets the assigned rider back out: the order returns to
// preparing with no rider and no delivery code, so other riders can claim it.
func (s *Store) DeclineRider(ctx context.Context, id, riderID types.ID) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET rider_id = NULL,
		    status = 'preparing',
		    status_version = status_version + 1,
		    delivery_code = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND rider_id = $2 AND status = 'out_for_delivery'`,
		string(id),
		string(riderID),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	rid := riderID
	if err := appendHistoryTx(ctx, tx, &HistoryEntry{
		OrderID:   id,
		Status:    StatusPreparing,
		ActorType: types.RoleRider,
		ActorID:   &rid,
		Note:      "declined",
		CreatedAt: time.Now(),
	}); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *Store) SetDeliveryCode(ctx context.Context, id types.ID, code string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE orders SET delivery_code = $1, updated_at = NOW() WHERE id = $2`,
		code, string(id),
	)
	return err
}

func (s *Store) AppendHistory(ctx context.Context, e *HistoryEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_history (order_id, status, actor_type, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.Status),
		string(e.ActorType),
		idPtr(e.ActorID),
		e.Note,
		e.CreatedAt,
	)
	return err
}

func (s *Store) History(ctx context.Context, orderID types.ID) ([]HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, status, actor_type, actor_id, note, created_at
		FROM order_history
		WHERE order_id = $1
		ORDER BY id`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.ActorType, &actorID, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			a := types.ID(actorID.String)
			e.ActorID = &a
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func appendHistoryTx(ctx context.Context, tx pgx.Tx, e *HistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_history (order_id, status, actor_type, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.Status),
		string(e.ActorType),
		idPtr(e.ActorID),
		e.Note,
		e.CreatedAt,
	)
	return err
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func actorIDPtr(a types.Actor) *types.ID {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}
