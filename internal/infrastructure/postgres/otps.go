package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stello/stello-api/internal/domain"
)

// OTPRepo provides Postgres operations for one OTP table. Email-verification
// and password-reset codes live in separate tables of identical shape, so one
// repo type serves both purposes.
type OTPRepo struct {
	db    DB
	table string
}

func NewEmailVerificationRepo(db DB) *OTPRepo {
	return &OTPRepo{db: db, table: "email_verifications"}
}

func NewPasswordResetRepo(db DB) *OTPRepo {
	return &OTPRepo{db: db, table: "password_reset_otps"}
}

func (r *OTPRepo) Insert(ctx context.Context, rec *domain.OTPRecord) error {
	_, err := querierFrom(ctx, r.db).Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, user_id, otp_code, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.table), rec.ID, rec.UserID, rec.Code, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}
	return nil
}

// FindValid returns the newest unused, unexpired record matching the code.
// Checking newest-first tolerates multiple outstanding codes for the
// additive email-verification purpose.
func (r *OTPRepo) FindValid(ctx context.Context, userID int64, code string) (*domain.OTPRecord, error) {
	row := querierFrom(ctx, r.db).QueryRow(ctx, fmt.Sprintf(`
		SELECT id, user_id, otp_code, created_at, expires_at, is_used
		FROM %s
		WHERE user_id = $1 AND otp_code = $2 AND is_used = FALSE AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT 1
	`, r.table), userID, code)

	var rec domain.OTPRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Code, &rec.CreatedAt, &rec.ExpiresAt, &rec.IsUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("otp: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan otp: %w", err)
	}
	return &rec, nil
}

// MarkUsed consumes a matched code.
func (r *OTPRepo) MarkUsed(ctx context.Context, userID int64, code string) error {
	_, err := querierFrom(ctx, r.db).Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET is_used = TRUE WHERE user_id = $1 AND otp_code = $2
	`, r.table), userID, code)
	if err != nil {
		return fmt.Errorf("mark otp used: %w", err)
	}
	return nil
}

// InvalidateUnused marks every unused code for the account as used and
// returns how many rows it touched. Zero rows is a valid outcome, not an
// error.
func (r *OTPRepo) InvalidateUnused(ctx context.Context, userID int64) (int64, error) {
	tag, err := querierFrom(ctx, r.db).Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET is_used = TRUE WHERE user_id = $1 AND is_used = FALSE
	`, r.table), userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate otps: %w", err)
	}
	return tag.RowsAffected(), nil
}
