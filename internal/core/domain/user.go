package domain

import "time"

type UserID string

// User is a creator account. Identity and billing live in external systems;
// the control plane only needs the id and the active plan.
type User struct {
	ID        UserID    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Plan      Plan      `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}
