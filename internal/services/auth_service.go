package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/upishield/fraud-screening/internal/auth"
	"github.com/upishield/fraud-screening/internal/models"
	"github.com/upishield/fraud-screening/internal/repositories"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password does not meet requirements")
)

// AuthService handles analyst authentication operations
type AuthService struct {
	analystRepo *repositories.AnalystRepository
	jwtManager  *auth.JWTManager
}

// NewAuthService creates a new auth service
func NewAuthService(analystRepo *repositories.AnalystRepository, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		analystRepo: analystRepo,
		jwtManager:  jwtManager,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	Token     string          `json:"token"`
	ExpiresIn int64           `json:"expires_in"`
	Analyst   AnalystResponse `json:"analyst"`
}

// AnalystResponse represents an analyst in responses
type AnalystResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
}

// Register registers a new analyst account
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if !auth.ValidatePasswordStrength(req.Password) {
		return nil, ErrWeakPassword
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := req.Role
	if role != models.RoleAdmin {
		role = models.RoleAnalyst
	}

	analyst := &models.Analyst{
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Role:         role,
	}

	if err := s.analystRepo.Create(ctx, analyst); err != nil {
		if errors.Is(err, repositories.ErrAnalystAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create analyst: %w", err)
	}

	return s.buildAuthResponse(analyst)
}

// Login authenticates an analyst
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	analyst, err := s.analystRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrAnalystNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find analyst: %w", err)
	}

	if !auth.CheckPassword(req.Password, analyst.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.buildAuthResponse(analyst)
}

func (s *AuthService) buildAuthResponse(analyst *models.Analyst) (*AuthResponse, error) {
	token, err := s.jwtManager.GenerateToken(analyst.ID, analyst.Email, analyst.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.jwtManager.Expiration().Seconds()),
		Analyst: AnalystResponse{
			ID:        analyst.ID,
			Email:     analyst.Email,
			Role:      analyst.Role,
			CreatedAt: analyst.CreatedAt.Format("2006-01-02T15:04:05Z"),
		},
	}, nil
}
