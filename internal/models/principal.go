package models

import "github.com/google/uuid"

// Principal is the authenticated caller extracted from a verified bearer
// token. The stats service keeps no user table; the token subject is the
// user id the snapshots are keyed by.
type Principal struct {
	UserID  uuid.UUID `json:"user_id"`
	Subject string    `json:"subject"`
	Email   string    `json:"email,omitempty"`
}
