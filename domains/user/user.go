package user

import (
	"context"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type IUserUsecase interface {
	Login(ctx context.Context, req LoginRequest) (LoginResponse, error)
	// EnsureSeedAdmin creates the bootstrap admin user when the table is
	// empty. Returns the generated password when one had to be invented.
	EnsureSeedAdmin(ctx context.Context) (generatedPassword string, err error)
}
