package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of marketplace roles carried on an identity.
type Role string

const (
	RoleBuyer  Role = "Buyer"
	RoleFarmer Role = "Farmer"
)

func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleFarmer
}

// Identity is the verified (user, role) pair attached to a request.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

func (i Identity) Authenticated() bool {
	return i.UserID != uuid.Nil && i.Role.Valid()
}

type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never serialize in JSON
	FullName     string    `json:"full_name" db:"full_name"`
	PhoneNumber  string    `json:"phone_number" db:"phone_number"`
	Role         Role      `json:"role" db:"role"`
	Address      string    `json:"address" db:"address"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// RegisterRequest is the signup payload
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Role        Role   `json:"role"`
	Address     string `json:"address"`
}
