package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stello/stello-api/internal/domain"
	"github.com/stello/stello-api/internal/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockOTPStore struct{ mock.Mock }

func (m *mockOTPStore) Insert(ctx context.Context, rec *domain.OTPRecord) error {
	return m.Called(ctx, rec).Error(0)
}
func (m *mockOTPStore) FindValid(ctx context.Context, userID int64, code string) (*domain.OTPRecord, error) {
	args := m.Called(ctx, userID, code)
	if rec, _ := args.Get(0).(*domain.OTPRecord); rec != nil {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockOTPStore) MarkUsed(ctx context.Context, userID int64, code string) error {
	return m.Called(ctx, userID, code).Error(0)
}
func (m *mockOTPStore) InvalidateUnused(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return int64(args.Int(0)), args.Error(1)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) SetVerified(ctx context.Context, userID int64, verified bool) error {
	return m.Called(ctx, userID, verified).Error(0)
}
func (m *mockUserStore) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	return m.Called(ctx, userID, passwordHash).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Dispatch(n domain.Notification) { m.Called(n) }

// fakeTransactor runs fn directly. Commit/rollback mechanics are covered by
// the postgres package tests; here we only care that operations go through
// the unit of work and that dispatch happens after it succeeds.
type fakeTransactor struct {
	calls    int
	beginErr error
}

func (f *fakeTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	f.calls++
	return fn(ctx)
}

// --- builder ---

func newTestService(vs, rs *mockOTPStore, us *mockUserStore, tx *fakeTransactor, ev *mockNotifier) Service {
	return NewService(ServiceDeps{
		VerificationRepo: vs,
		ResetRepo:        rs,
		UserRepo:         us,
		Transactor:       tx,
		Events:           ev,
		Validate:         validate.Struct,
	})
}

// --- Issue ---

func TestIssue_EmailVerification_IsAdditive(t *testing.T) {
	vs := &mockOTPStore{}
	vs.On("Insert", mock.Anything, mock.AnythingOfType("*domain.OTPRecord")).Return(nil)

	svc := newTestService(vs, &mockOTPStore{}, nil, &fakeTransactor{}, nil)
	rec, err := svc.Issue(context.Background(), 7, domain.PurposeEmailVerification)

	require.NoError(t, err)
	assert.Len(t, rec.Code, domain.OTPLength)
	assert.NotEmpty(t, rec.ID)
	assert.WithinDuration(t, rec.CreatedAt.Add(domain.OTPTTL), rec.ExpiresAt, time.Second)
	vs.AssertExpectations(t)
	// Issuing a verification code never touches earlier ones.
	vs.AssertNotCalled(t, "InvalidateUnused", mock.Anything, mock.Anything)
}

func TestIssue_PasswordReset_SupersedesPriorCodes(t *testing.T) {
	rs := &mockOTPStore{}
	rs.On("InvalidateUnused", mock.Anything, int64(7)).Return(2, nil)
	rs.On("Insert", mock.Anything, mock.AnythingOfType("*domain.OTPRecord")).Return(nil)

	svc := newTestService(&mockOTPStore{}, rs, nil, &fakeTransactor{}, nil)
	rec, err := svc.Issue(context.Background(), 7, domain.PurposePasswordReset)

	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.UserID)
	rs.AssertExpectations(t)
}

func TestIssue_PasswordReset_ZeroUnusedRowsIsNoop(t *testing.T) {
	rs := &mockOTPStore{}
	rs.On("InvalidateUnused", mock.Anything, int64(7)).Return(0, nil)
	rs.On("Insert", mock.Anything, mock.AnythingOfType("*domain.OTPRecord")).Return(nil)

	svc := newTestService(&mockOTPStore{}, rs, nil, &fakeTransactor{}, nil)
	_, err := svc.Issue(context.Background(), 7, domain.PurposePasswordReset)

	require.NoError(t, err)
	rs.AssertExpectations(t)
}

// --- ResendVerification ---

func TestResendVerification_MissingEmail(t *testing.T) {
	tx := &fakeTransactor{}
	svc := newTestService(nil, nil, nil, tx, nil)

	err := svc.ResendVerification(context.Background(), domain.ResendVerificationRequest{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	assert.Zero(t, tx.calls, "validation failures must not open a unit of work")
}

func TestResendVerification_UserNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "x@x.com").Return(nil, domain.ErrNotFound)
	ev := &mockNotifier{}

	svc := newTestService(&mockOTPStore{}, &mockOTPStore{}, us, &fakeTransactor{}, ev)
	err := svc.ResendVerification(context.Background(), domain.ResendVerificationRequest{Email: "x@x.com"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	ev.AssertNotCalled(t, "Dispatch", mock.Anything)
}

func TestResendVerification_AlreadyVerified(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: 1, Email: "a@b.com", IsVerified: true}, nil)

	svc := newTestService(&mockOTPStore{}, &mockOTPStore{}, us, &fakeTransactor{}, &mockNotifier{})
	err := svc.ResendVerification(context.Background(), domain.ResendVerificationRequest{Email: "a@b.com"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestResendVerification_HappyPath_DoesNotInvalidatePrior(t *testing.T) {
	us := &mockUserStore{}
	vs := &mockOTPStore{}
	ev := &mockNotifier{}

	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: 1, Email: "a@b.com"}, nil)
	vs.On("Insert", mock.Anything, mock.AnythingOfType("*domain.OTPRecord")).Return(nil)
	ev.On("Dispatch", mock.MatchedBy(func(n domain.Notification) bool {
		return n.Email == "a@b.com" && n.Purpose == domain.PurposeEmailVerification && len(n.Code) == 6
	})).Return()

	svc := newTestService(vs, &mockOTPStore{}, us, &fakeTransactor{}, ev)
	err := svc.ResendVerification(context.Background(), domain.ResendVerificationRequest{Email: "a@b.com"})

	require.NoError(t, err)
	vs.AssertNotCalled(t, "InvalidateUnused", mock.Anything, mock.Anything)
	ev.AssertExpectations(t)
}

func TestResendVerification_InsertFails_NoDispatch(t *testing.T) {
	us := &mockUserStore{}
	vs := &mockOTPStore{}
	ev := &mockNotifier{}

	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: 1, Email: "a@b.com"}, nil)
	vs.On("Insert", mock.Anything, mock.Anything).Return(errors.New("disk on fire"))

	svc := newTestService(vs, &mockOTPStore{}, us, &fakeTransactor{}, ev)
	err := svc.ResendVerification(context.Background(), domain.ResendVerificationRequest{Email: "a@b.com"})

	require.Error(t, err)
	ev.AssertNotCalled(t, "Dispatch", mock.Anything)
}

// --- VerifyEmail ---

func TestVerifyEmail_UserNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "x@x.com").Return(nil, domain.ErrNotFound)

	svc := newTestService(&mockOTPStore{}, &mockOTPStore{}, us, &fakeTransactor{}, nil)
	err := svc.VerifyEmail(context.Background(), domain.VerifyEmailRequest{Email: "x@x.com", OTP: "123456"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerifyEmail_AlreadyVerified(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: 1, IsVerified: true}, nil)

	svc := newTestService(&mockOTPStore{}, &mockOTPStore{}, us, &fakeTransactor{}, nil)
	err := svc.VerifyEmail(context.Background(), domain.VerifyEmailRequest{Email: "a@b.com", OTP: "123456"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestVerifyEmail_WrongOrExpiredCode(t *testing.T) {
	us := &mockUserStore{}
	vs := &mockOTPStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: 1}, nil)
	vs.On("FindValid", mock.Anything, int64(1), "000000").Return(nil, domain.ErrNotFound)

	svc := newTestService(vs, &mockOTPStore{}, us, &fakeTransactor{}, nil)
	err := svc.VerifyEmail(context.Background(), domain.VerifyEmailRequest{Email: "a@b.com", OTP: "000000"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidOTP))
	us.AssertNotCalled(t, "SetVerified", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyEmail_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	vs := &mockOTPStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: 1, Email: "a@b.com"}, nil)
	vs.On("FindValid", mock.Anything, int64(1), "123456").Return(&domain.OTPRecord{
		ID:        "01ARZ3",
		UserID:    1,
		Code:      "123456",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}, nil)
	us.On("SetVerified", mock.Anything, int64(1), true).Return(nil)
	vs.On("MarkUsed", mock.Anything, int64(1), "123456").Return(nil)

	svc := newTestService(vs, &mockOTPStore{}, us, &fakeTransactor{}, nil)
	err := svc.VerifyEmail(context.Background(), domain.VerifyEmailRequest{Email: "a@b.com", OTP: "123456"})

	require.NoError(t, err)
	us.AssertExpectations(t)
	vs.AssertExpectations(t)
}

func TestVerifyEmail_SecondUseOfSameCodeFails(t *testing.T) {
	// After a successful verify the record is used, so the valid-code lookup
	// comes back empty and the caller sees the same undifferentiated error as
	// for a wrong code.
	us := &mockUserStore{}
	vs := &mockOTPStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: 1, IsVerified: true}, nil)

	svc := newTestService(vs, &mockOTPStore{}, us, &fakeTransactor{}, nil)
	err := svc.VerifyEmail(context.Background(), domain.VerifyEmailRequest{Email: "a@b.com", OTP: "123456"})

	// Account already flipped verified, so the conflict check fires first.
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

// --- RequestPasswordReset ---

func TestRequestPasswordReset_UserNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "x@x.com").Return(nil, domain.ErrNotFound)
	ev := &mockNotifier{}

	svc := newTestService(&mockOTPStore{}, &mockOTPStore{}, us, &fakeTransactor{}, ev)
	err := svc.RequestPasswordReset(context.Background(), domain.PasswordResetOTPRequest{Email: "x@x.com"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	ev.AssertNotCalled(t, "Dispatch", mock.Anything)
}

func TestRequestPasswordReset_SupersedesPriorCodes(t *testing.T) {
	us := &mockUserStore{}
	rs := &mockOTPStore{}
	ev := &mockNotifier{}

	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: 9, Email: "a@b.com"}, nil)
	rs.On("InvalidateUnused", mock.Anything, int64(9)).Return(1, nil)
	rs.On("Insert", mock.Anything, mock.AnythingOfType("*domain.OTPRecord")).Return(nil)
	ev.On("Dispatch", mock.MatchedBy(func(n domain.Notification) bool {
		return n.Purpose == domain.PurposePasswordReset
	})).Return()

	svc := newTestService(&mockOTPStore{}, rs, us, &fakeTransactor{}, ev)
	err := svc.RequestPasswordReset(context.Background(), domain.PasswordResetOTPRequest{Email: "a@b.com"})

	require.NoError(t, err)
	rs.AssertExpectations(t)
	ev.AssertExpectations(t)
}

// --- ResetPassword ---

func TestResetPassword_PasswordMismatch(t *testing.T) {
	tx := &fakeTransactor{}
	svc := newTestService(nil, nil, nil, tx, nil)

	err := svc.ResetPassword(context.Background(), domain.ResetPasswordRequest{
		Email:           "a@b.com",
		OTP:             "123456",
		Password:        "newpass1",
		ConfirmPassword: "different",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	assert.Zero(t, tx.calls)
}

func TestResetPassword_InvalidOTP(t *testing.T) {
	us := &mockUserStore{}
	rs := &mockOTPStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: 9}, nil)
	rs.On("FindValid", mock.Anything, int64(9), "999999").Return(nil, domain.ErrNotFound)

	svc := newTestService(&mockOTPStore{}, rs, us, &fakeTransactor{}, nil)
	err := svc.ResetPassword(context.Background(), domain.ResetPasswordRequest{
		Email:           "a@b.com",
		OTP:             "999999",
		Password:        "newpass1",
		ConfirmPassword: "newpass1",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidOTP))
	us.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPassword_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	rs := &mockOTPStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: 9}, nil)
	rs.On("FindValid", mock.Anything, int64(9), "123456").Return(&domain.OTPRecord{
		UserID: 9, Code: "123456", ExpiresAt: time.Now().Add(5 * time.Minute),
	}, nil)
	us.On("UpdatePassword", mock.Anything, int64(9), mock.MatchedBy(func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte("newpass1")) == nil
	})).Return(nil)
	rs.On("MarkUsed", mock.Anything, int64(9), "123456").Return(nil)

	svc := newTestService(&mockOTPStore{}, rs, us, &fakeTransactor{}, nil)
	err := svc.ResetPassword(context.Background(), domain.ResetPasswordRequest{
		Email:           "a@b.com",
		OTP:             "123456",
		Password:        "newpass1",
		ConfirmPassword: "newpass1",
	})

	require.NoError(t, err)
	us.AssertExpectations(t)
	rs.AssertExpectations(t)
}
