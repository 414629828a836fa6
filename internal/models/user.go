package models

import "time"

// User is a local account. All entities in the store are scoped by user id.
type User struct {
	ID           string    `bson:"userId" json:"id"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"passwordHash" json:"-"`
	CreatedAt    time.Time `bson:"createdAt" json:"created_at"`
}

// RegisterRequest is the request body for account creation.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries a signed access token.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
