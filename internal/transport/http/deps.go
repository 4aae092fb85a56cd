package http

import (
	"github.com/stello/stello-api/internal/events"
	jwtinfra "github.com/stello/stello-api/internal/infrastructure/jwt"
	"github.com/stello/stello-api/internal/infrastructure/postgres"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *postgres.UserRepo
	VerificationRepo *postgres.OTPRepo
	ResetRepo        *postgres.OTPRepo
	Transactor       *postgres.Transactor
	JWTProvider      *jwtinfra.Provider
	Events           *events.Dispatcher
}
