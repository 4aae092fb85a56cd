package postgres

import (
	"context"
	"log"
)

// Table creation statements. Email, username and phone carry UNIQUE
// constraints: the registration pre-checks only exist for friendlier error
// messages, the constraints are the real uniqueness guarantee under
// concurrent registrations.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id       BIGSERIAL PRIMARY KEY,
		full_name     TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		phone_no      TEXT NOT NULL UNIQUE,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_verified   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS email_verifications (
		id         TEXT PRIMARY KEY,
		user_id    BIGINT NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
		otp_code   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ NOT NULL,
		is_used    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS email_verifications_user_created_idx
		ON email_verifications (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS password_reset_otps (
		id         TEXT PRIMARY KEY,
		user_id    BIGINT NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
		otp_code   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ NOT NULL,
		is_used    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS password_reset_otps_user_created_idx
		ON password_reset_otps (user_id, created_at DESC)`,
}

// Bootstrap creates the tables and indexes if they don't exist.
// Failures are fatal: the API is useless without its schema.
func Bootstrap(ctx context.Context, db DB) {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			log.Fatalf("bootstrap schema: %v", err)
		}
	}
	log.Println("database schema ready")
}
