// Package models defines the client-side data model of the Narrate API.
package models

import "time"

// User is the authenticated identity as reported by the session endpoint.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Image     *string   `json:"image,omitempty"`
	Bio       *string   `json:"bio,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Clone returns a deep copy so cached values can be handed out as snapshots.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
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

// DisplayName is the full name when known, otherwise the username.
func (u *User) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	if u.LastName == "" {
		return u.FirstName
	}
	if u.FirstName == "" {
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}
