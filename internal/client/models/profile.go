package models

// UpdateUserData is a partial profile update; nil fields are left unchanged.
type UpdateUserData struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

// Empty reports whether the update carries no field at all.
func (d UpdateUserData) Empty() bool {
	return d.Username == nil && d.Email == nil && d.Bio == nil
}

// ProfileImage is the payload of a successful avatar upload.
type ProfileImage struct {
	Image string `json:"image"`
}
