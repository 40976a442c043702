// README: User store backed by PostgreSQL (lookup and credential updates only).
package auth

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

func (s *Store) GetByPhone(ctx context.Context, phone string) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, phone, role, password_hash, created_at
		FROM users
		WHERE phone = $1`, phone,
	)
	var u User
	err := row.Scan(&u.ID, &u.Phone, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpdatePassword(ctx context.Context, phone, passwordHash string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET password_hash = $1 WHERE phone = $2`,
		passwordHash, phone,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrUserNotFound
	}
	return nil
}
