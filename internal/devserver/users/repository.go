package users

import (
	"context"
)

// Repository persists users. Usernames and emails are unique, compared
// without regard to case; lookups of missing users return
// common.ErrorNotFound and uniqueness violations common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
	// Search returns up to limit verified users whose username contains
	// query, newest first, starting after the cursor when one is given.
	Search(ctx context.Context, query string, limit int, after *Cursor) ([]*User, error)
}
