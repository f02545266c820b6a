package client

import "time"

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the raw wire shape of a successful login.
type loginResponse struct {
	FullName   string `json:"full_name"`
	ExpiryDate string `json:"expiry_date"`
	Token      string `json:"token"`
}

// LoginResult is a verified credential check: who logged in, the bearer
// token, and the absolute expiry of the session.
type LoginResult struct {
	FullName  string
	Token     string
	ExpiresAt time.Time
}

// ErrorResponse represents an API error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}
