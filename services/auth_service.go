package services

import (
	"fmt"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IAuthService interface {
	Signup(name, email, password string) (Token, domain.User, error)
	Login(email, password string) (Token, domain.User, error)
}

type AuthService struct {
	users  repositories.IUserRepository
	tokens *auth.TokenManager
}

type Token string

func NewAuthService(users repositories.IUserRepository, tokens *auth.TokenManager) IAuthService {
	return &AuthService{users: users, tokens: tokens}
}

func (s *AuthService) Signup(name, email, password string) (Token, domain.User, error) {
	valReq := auth.SignupRequest{
		Name:     name,
		Email:    email,
		Password: password,
	}

	// 1. Validate business rules (email format, password complexity)
	// before any expensive cryptographic operation.
	if err := auth.ValidateSignup(valReq); err != nil {
		return "", domain.User{}, fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// 2. Hash the password here so the repository never sees it in plain.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash.
	user, err := s.users.CreateUser(name, email, hashedPassword)
	if err != nil {
		return "", domain.User{}, err // Propagates ErrUserAlreadyExists if email is taken
	}

	// 4. Issue the initial session token.
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", domain.User{}, errors.ErrTokenGeneration
	}

	return Token(token), user, nil
}

func (s *AuthService) Login(email, password string) (Token, domain.User, error) {
	// Malformed input gets the same generic rejection as a wrong password,
	// without touching the repository.
	valReq := auth.LoginRequest{
		Email:    email,
		Password: password,
	}
	if err := auth.ValidateLogin(valReq); err != nil {
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks.
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", domain.User{}, errors.ErrTokenGeneration
	}

	return Token(token), user, nil
}
