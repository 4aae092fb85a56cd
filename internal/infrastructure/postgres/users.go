package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stello/stello-api/internal/domain"
)

const userColumns = `user_id, full_name, email, phone_no, username, password_hash, is_verified, created_at, updated_at`

// UserRepo provides typed Postgres operations for the users table.
// Every method runs against the transaction carried by ctx when one is open.
type UserRepo struct {
	db DB
}

func NewUserRepo(db DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *UserRepo) GetByPhoneNo(ctx context.Context, phoneNo string) (*domain.User, error) {
	return r.getBy(ctx, "phone_no", phoneNo)
}

func (r *UserRepo) Get(ctx context.Context, userID int64) (*domain.User, error) {
	row := querierFrom(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	return scanUser(row)
}

func (r *UserRepo) getBy(ctx context.Context, column, value string) (*domain.User, error) {
	row := querierFrom(ctx, r.db).QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, column), value)
	return scanUser(row)
}

// Create inserts an unverified account. The store assigns user_id; callers
// that need it re-read the row by email. A unique-constraint violation is
// reported as a conflict so races that slip past the pre-checks surface the
// same way the pre-checks do.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := querierFrom(ctx, r.db).Exec(ctx, `
		INSERT INTO users (full_name, email, phone_no, username, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, u.FullName, u.Email, u.PhoneNo, u.Username, u.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("user already exists: %w", domain.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SetVerified flips is_verified. The same column backs the already-verified
// checks, so reads and writes can never disagree about verification state.
func (r *UserRepo) SetVerified(ctx context.Context, userID int64, verified bool) error {
	_, err := querierFrom(ctx, r.db).Exec(ctx, `
		UPDATE users SET is_verified = $1, updated_at = now() WHERE user_id = $2
	`, verified, userID)
	if err != nil {
		return fmt.Errorf("update is_verified: %w", err)
	}
	return nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := querierFrom(ctx, r.db).Exec(ctx, `
		UPDATE users SET password_hash = $1, updated_at = now() WHERE user_id = $2
	`, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.UserID, &u.FullName, &u.Email, &u.PhoneNo, &u.Username,
		&u.PasswordHash, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
