package models

// SignInData is the sign-in request body.
type SignInData struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpData is the registration request body.
type SignUpData struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// VerifyOTPData is the body of the OTP verification request.
type VerifyOTPData struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// EmailData carries a single email, used to request a new OTP.
type EmailData struct {
	Email string `json:"email"`
}
