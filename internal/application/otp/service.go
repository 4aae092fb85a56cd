package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stello/stello-api/internal/domain"
	"github.com/stello/stello-api/internal/pkg/id"
	"github.com/stello/stello-api/internal/pkg/otpgen"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	// Issue creates a code inside the caller's transaction. The caller owns
	// the commit.
	Issue(ctx context.Context, userID int64, purpose domain.OTPPurpose) (*domain.OTPRecord, error)
	ResendVerification(ctx context.Context, req domain.ResendVerificationRequest) error
	VerifyEmail(ctx context.Context, req domain.VerifyEmailRequest) error
	RequestPasswordReset(ctx context.Context, req domain.PasswordResetOTPRequest) error
	ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) error
}

type otpStore interface {
	Insert(ctx context.Context, rec *domain.OTPRecord) error
	FindValid(ctx context.Context, userID int64, code string) (*domain.OTPRecord, error)
	MarkUsed(ctx context.Context, userID int64, code string) error
	InvalidateUnused(ctx context.Context, userID int64) (int64, error)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetVerified(ctx context.Context, userID int64, verified bool) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

type transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type notifier interface {
	Dispatch(n domain.Notification)
}

type service struct {
	verifications otpStore
	resets        otpStore
	users         userStore
	tx            transactor
	events        notifier
	validate      func(s interface{}) error
}

type ServiceDeps struct {
	VerificationRepo otpStore
	ResetRepo        otpStore
	UserRepo         userStore
	Transactor       transactor
	Events           notifier
	Validate         func(s interface{}) error
}

func NewService(deps ServiceDeps) Service {
	return &service{
		verifications: deps.VerificationRepo,
		resets:        deps.ResetRepo,
		users:         deps.UserRepo,
		tx:            deps.Transactor,
		events:        deps.Events,
		validate:      deps.Validate,
	}
}

// Issue generates a fresh code expiring in 15 minutes and inserts it.
// Password-reset issuance first invalidates every outstanding unused code for
// the account; email-verification issuance is additive and leaves earlier
// codes alone.
func (s *service) Issue(ctx context.Context, userID int64, purpose domain.OTPPurpose) (*domain.OTPRecord, error) {
	repo := s.verifications
	if purpose == domain.PurposePasswordReset {
		repo = s.resets
		if _, err := repo.InvalidateUnused(ctx, userID); err != nil {
			return nil, err
		}
	}
	code, err := otpgen.Generate(domain.OTPLength)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &domain.OTPRecord{
		ID:        id.New(),
		UserID:    userID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.OTPTTL),
	}
	if err := repo.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *service) ResendVerification(ctx context.Context, req domain.ResendVerificationRequest) error {
	if err := s.validate(&req); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	var notif domain.Notification
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			return userNotFound(err)
		}
		if u.IsVerified {
			return fmt.Errorf("user has already verified email: %w", domain.ErrConflict)
		}
		rec, err := s.Issue(ctx, u.UserID, domain.PurposeEmailVerification)
		if err != nil {
			return err
		}
		notif = domain.Notification{Email: u.Email, Code: rec.Code, Purpose: domain.PurposeEmailVerification}
		return nil
	})
	if err != nil {
		return err
	}
	s.events.Dispatch(notif)
	return nil
}

func (s *service) VerifyEmail(ctx context.Context, req domain.VerifyEmailRequest) error {
	if err := s.validate(&req); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			return userNotFound(err)
		}
		if u.IsVerified {
			return fmt.Errorf("user has already verified email: %w", domain.ErrConflict)
		}
		if _, err := s.verifications.FindValid(ctx, u.UserID, req.OTP); err != nil {
			return invalidOTP(err)
		}
		if err := s.users.SetVerified(ctx, u.UserID, true); err != nil {
			return err
		}
		return s.verifications.MarkUsed(ctx, u.UserID, req.OTP)
	})
}

func (s *service) RequestPasswordReset(ctx context.Context, req domain.PasswordResetOTPRequest) error {
	if err := s.validate(&req); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	var notif domain.Notification
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			return userNotFound(err)
		}
		rec, err := s.Issue(ctx, u.UserID, domain.PurposePasswordReset)
		if err != nil {
			return err
		}
		notif = domain.Notification{Email: u.Email, Code: rec.Code, Purpose: domain.PurposePasswordReset}
		return nil
	})
	if err != nil {
		return err
	}
	s.events.Dispatch(notif)
	return nil
}

func (s *service) ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) error {
	if err := s.validate(&req); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			return userNotFound(err)
		}
		if _, err := s.resets.FindValid(ctx, u.UserID, req.OTP); err != nil {
			return invalidOTP(err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := s.users.UpdatePassword(ctx, u.UserID, string(hash)); err != nil {
			return err
		}
		return s.resets.MarkUsed(ctx, u.UserID, req.OTP)
	})
}

func userNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("user with this email does not exist: %w", domain.ErrNotFound)
	}
	return err
}

// invalidOTP collapses "no matching row" into one undifferentiated error so
// callers can't probe which codes exist or whether one expired.
func invalidOTP(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("invalid or expired OTP: %w", domain.ErrInvalidOTP)
	}
	return err
}
