package domain

import "time"

// VerificationCode es un OTP de 6 dígitos ligado a un usuario.
// used_at en nil significa que el código sigue activo.
type VerificationCode struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	UserID    string     `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Active reporta si el código puede todavía confirmarse.
func (c VerificationCode) Active(now time.Time) bool {
	return c.UsedAt == nil && now.Before(c.ExpiresAt)
}
