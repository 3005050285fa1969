package domain

import "time"

// Role clasifica el tipo de cuenta en la plataforma.
type Role string

const (
	RoleBusiness Role = "BUSINESS"
	RoleCreator  Role = "CREATOR"
)

// ValidRole reporta si el valor corresponde a un rol conocido.
func ValidRole(r Role) bool {
	return r == RoleBusiness || r == RoleCreator
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
