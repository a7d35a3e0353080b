package identity

import "context"

// UserRepository persists users. Lookups return an apperr NotFound error for
// unknown users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}
