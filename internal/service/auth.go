package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/avelar-fin/loan-service/internal/models"
)

// RegisterStaff creates a new back-office user with hashed password
func (s *Service) RegisterStaff(ctx context.Context, email, name, password string) (*models.Staff, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	staff := &models.Staff{
		Email:        email,
		Name:         name,
		PasswordHash: string(hashedPassword),
	}

	if err := s.store.CreateStaff(ctx, staff); err != nil {
		return nil, err
	}

	s.log.Infof("Staff user registered: %s", staff.Email)
	return staff, nil
}

// Login authenticates a staff user and returns a JWT token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	staff, err := s.store.StaffByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", staff.ID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("Staff user logged in: %s", staff.Email)
	return tokenString, nil
}
