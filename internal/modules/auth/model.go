// README: User record and auth error kinds.
package auth

import (
	"errors"
	"time"

	"dishpatch/internal/types"
)

type User struct {
	ID           types.ID
	Phone        string
	Role         types.Role
	PasswordHash string
	CreatedAt    time.Time
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrSendFailed   = errors.New("failed to send code")
)
