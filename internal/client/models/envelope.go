package models

// Envelope is the JSON wrapper used by every Narrate API response.
type Envelope[T any] struct {
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// CSRFToken is the body of the CSRF token endpoint.
type CSRFToken struct {
	CSRFToken string `json:"csrfToken"`
}

// UsernameCheck reports whether a username is already registered.
type UsernameCheck struct {
	Exists bool `json:"exists"`
}
