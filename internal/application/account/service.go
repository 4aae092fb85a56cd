package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/stello/stello-api/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// RegisterResult carries what the transport layer needs after a successful
// registration: the cookie token and the redirect hint toward verification.
type RegisterResult struct {
	UserID   int64
	Token    string
	Redirect string
}

// LoginResult carries the session token plus the needs-verification signal.
// The cookie is set either way; the token is only echoed in the body once the
// account is verified.
type LoginResult struct {
	Token             string
	NeedsVerification bool
	Redirect          string
}

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*RegisterResult, error)
	Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error)
	Get(ctx context.Context, userID int64) (*domain.User, error)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByPhoneNo(ctx context.Context, phoneNo string) (*domain.User, error)
	Get(ctx context.Context, userID int64) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

type otpIssuer interface {
	Issue(ctx context.Context, userID int64, purpose domain.OTPPurpose) (*domain.OTPRecord, error)
}

type transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type sessionSigner interface {
	Sign(userID int64, email string) (string, error)
}

type notifier interface {
	Dispatch(n domain.Notification)
}

type service struct {
	users    userStore
	otp      otpIssuer
	tx       transactor
	session  sessionSigner
	events   notifier
	validate func(s interface{}) error
}

type ServiceDeps struct {
	UserRepo   userStore
	OTPService otpIssuer
	Transactor transactor
	Session    sessionSigner
	Events     notifier
	Validate   func(s interface{}) error
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:    deps.UserRepo,
		otp:      deps.OTPService,
		tx:       deps.Transactor,
		session:  deps.Session,
		events:   deps.Events,
		validate: deps.Validate,
	}
}

// Register creates an unverified account and its first verification code in
// one transaction. The uniqueness pre-checks run email, then username, then
// phone so the first collision wins deterministically; the schema's UNIQUE
// constraints remain the backstop for concurrent registrations. The session
// token and the notification both happen strictly after commit.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*RegisterResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}

	var (
		userID int64
		code   string
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkAvailable(ctx, req); err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := s.users.Create(ctx, &domain.User{
			FullName:     req.FullName,
			Email:        req.Email,
			PhoneNo:      req.PhoneNo,
			Username:     req.Username,
			PasswordHash: string(hash),
		}); err != nil {
			return err
		}
		// Re-read for the store-assigned id rather than trusting an
		// insert-returned value.
		u, err := s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			return err
		}
		rec, err := s.otp.Issue(ctx, u.UserID, domain.PurposeEmailVerification)
		if err != nil {
			return err
		}
		userID = u.UserID
		code = rec.Code
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := s.session.Sign(userID, req.Email)
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(domain.Notification{
		Email:   req.Email,
		Code:    code,
		Purpose: domain.PurposeEmailVerification,
	})
	return &RegisterResult{UserID: userID, Token: token, Redirect: "/verify-email"}, nil
}

func (s *service) checkAvailable(ctx context.Context, req domain.RegisterRequest) error {
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return fmt.Errorf("user with this email already exists: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, err := s.users.GetByUsername(ctx, req.Username); err == nil {
		return fmt.Errorf("user with this username already exists: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, err := s.users.GetByPhoneNo(ctx, req.PhoneNo); err == nil {
		return fmt.Errorf("user with this phone number already exists: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// Login verifies credentials and mints a session token regardless of
// verification state. It performs no writes but still runs inside a unit of
// work so every store round-trip shares one acquire/release lifecycle.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}

	var u *domain.User
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		found, err := s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("user with this email does not exist: %w", domain.ErrNotFound)
			}
			return err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(req.Password)); err != nil {
			return fmt.Errorf("incorrect password: %w", domain.ErrUnauthorized)
		}
		u = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := s.session.Sign(u.UserID, u.Email)
	if err != nil {
		return nil, err
	}
	res := &LoginResult{Token: token}
	if !u.IsVerified {
		res.NeedsVerification = true
		res.Redirect = "/verify-email"
	}
	return res, nil
}

func (s *service) Get(ctx context.Context, userID int64) (*domain.User, error) {
	return s.users.Get(ctx, userID)
}
