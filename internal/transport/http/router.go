package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/stello/stello-api/internal/application/account"
	"github.com/stello/stello-api/internal/application/otp"
	"github.com/stello/stello-api/internal/config"
	"github.com/stello/stello-api/internal/pkg/validate"
	"github.com/stello/stello-api/internal/transport/http/handler"
	appmiddleware "github.com/stello/stello-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	otpSvc := otp.NewService(otp.ServiceDeps{
		VerificationRepo: deps.VerificationRepo,
		ResetRepo:        deps.ResetRepo,
		UserRepo:         deps.UserRepo,
		Transactor:       deps.Transactor,
		Events:           deps.Events,
		Validate:         validate.Struct,
	})
	accountSvc := account.NewService(account.ServiceDeps{
		UserRepo:   deps.UserRepo,
		OTPService: otpSvc,
		Transactor: deps.Transactor,
		Session:    deps.JWTProvider,
		Events:     deps.Events,
		Validate:   validate.Struct,
	})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(accountSvc, otpSvc, cfg)
	pwH := handler.NewPasswordHandler(otpSvc)

	authMw := appmiddleware.Auth(deps.JWTProvider, cfg)

	// 5 requests/second, burst of 10 — applied to the sensitive public
	// endpoints (anything that mints tokens or sends OTP mail).
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	r.Get("/health-check", healthH.Ping)

	r.Route("/auth/user", func(r chi.Router) {
		r.With(sensitiveRL.Limit).Post("/register", authH.Register)
		r.With(sensitiveRL.Limit).Post("/login", authH.Login)
		r.With(sensitiveRL.Limit).Post("/resend-email-verification", authH.ResendEmailVerification)
		r.With(sensitiveRL.Limit).Post("/verify-email", authH.VerifyEmail)
		r.With(sensitiveRL.Limit).Post("/send-password-reset-otp", pwH.SendResetOTP)
		r.With(sensitiveRL.Limit).Post("/reset-password", pwH.ResetPassword)
		r.Post("/logout", authH.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Get("/me", authH.Me)
		})
	})

	return r
}
