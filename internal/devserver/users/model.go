package users

import "time"

// User is an account of the development backend.
type User struct {
	ID           string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash []byte
	Verified     bool
	OTP          string
	OTPExpires   time.Time
	Image        *string
	Bio          *string
	CreatedAt    time.Time
}

func (u *User) clone() *User {
	c := *u
	c.PasswordHash = append([]byte(nil), u.PasswordHash...)
	if u.Image != nil {
		img := *u.Image
		c.Image = &img
	}
	if u.Bio != nil {
		bio := *u.Bio
		c.Bio = &bio
	}
	return &c
}

// Cursor marks the last user of a search page.
type Cursor struct {
	ID        string
	CreatedAt time.Time
}

// precedes reports whether u sorts after the cursor in newest-first order.
func (c Cursor) precedes(u *User) bool {
	if u.CreatedAt.Equal(c.CreatedAt) {
		return u.ID < c.ID
	}
	return u.CreatedAt.Before(c.CreatedAt)
}
