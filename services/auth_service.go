package services

import (
	stderrors "errors"
	"log/slog"

	"chat-hub/auth"
	"chat-hub/errors"
	"chat-hub/repositories"

	"github.com/dgraph-io/badger/v4"
)

type IAuthService interface {
	Register(req auth.RegisterRequest) (string, error)
	Login(req auth.LoginRequest) (string, error)
}

// AuthService issues the tokens the realtime layer authenticates with.
type AuthService struct {
	log    *slog.Logger
	users  repositories.IUserRepository
	issuer *auth.TokenIssuer
}

func NewAuthService(log *slog.Logger, users repositories.IUserRepository, issuer *auth.TokenIssuer) *AuthService {
	return &AuthService{log: log, users: users, issuer: issuer}
}

// Register creates an account and returns a signed token for it.
func (a *AuthService) Register(req auth.RegisterRequest) (string, error) {
	if err := auth.ValidateRegister(req); err != nil {
		return "", err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return "", err
	}

	userID, err := a.users.CreateUser(req.Email, hash)
	if err != nil {
		return "", err
	}

	a.log.Info("User registered", "user_id", userID)
	return a.issuer.Generate(userID)
}

// Login verifies the credentials and returns a signed token.
// Unknown account and wrong password collapse into the same error.
func (a *AuthService) Login(req auth.LoginRequest) (string, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return "", err
	}

	user, err := a.users.GetUserByEmail(req.Email)
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return "", errors.ErrInvalidCredentials
		}
		return "", err
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil {
		return "", err
	}
	if !match {
		return "", errors.ErrInvalidCredentials
	}

	return a.issuer.Generate(user.ID)
}
