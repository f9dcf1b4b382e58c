package models

import "time"

// Staff represents a back-office user of the admin API
type Staff struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"` // Not serialized
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
