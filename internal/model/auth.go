package model

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the authenticated back-office user.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	User      User   `json:"user"`
}

// APIErrorBody is the error body returned by the agent backend.
type APIErrorBody struct {
	Message string `json:"message"`
}
