package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stello/stello-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactor_CommitsWhenFnSucceeds(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET is_verified`).
		WithArgs(true, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tr := NewTransactor(mock)
	repo := NewUserRepo(mock)
	err = tr.InTx(context.Background(), func(ctx context.Context) error {
		return repo.SetVerified(ctx, 1, true)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_RollsBackWhenFnFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tr := NewTransactor(mock)
	boom := errors.New("boom")
	err = tr.InTx(context.Background(), func(ctx context.Context) error {
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_BeginFailureIsStoreUnavailable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	tr := NewTransactor(mock)
	err = tr.InTx(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn must not run when begin fails")
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

// Registration writes across both tables must share one transaction: if the
// OTP insert fails, the user insert rolls back with it.
func TestTransactor_MultiRepoWritesAreAtomic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("Jane Doe", "jane@x.com", "5551234", "jane1", "hash").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO email_verifications`).
		WithArgs(pgxmock.AnyArg(), int64(42), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk on fire"))
	mock.ExpectRollback()

	tr := NewTransactor(mock)
	users := NewUserRepo(mock)
	otps := NewEmailVerificationRepo(mock)

	err = tr.InTx(context.Background(), func(ctx context.Context) error {
		if err := users.Create(ctx, &domain.User{
			FullName: "Jane Doe", Email: "jane@x.com", PhoneNo: "5551234",
			Username: "jane1", PasswordHash: "hash",
		}); err != nil {
			return err
		}
		return otps.Insert(ctx, &domain.OTPRecord{ID: "01X", UserID: 42, Code: "123456"})
	})

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuerierFrom_FallsBackToPoolOutsideTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// No ExpectBegin: the exec goes straight to the pool.
	mock.ExpectExec(`UPDATE email_verifications SET is_used`).
		WithArgs(int64(5), "123456").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewEmailVerificationRepo(mock)
	err = repo.MarkUsed(context.Background(), 5, "123456")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
