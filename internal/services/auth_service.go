package services

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"electroshop_backend/internal/auth"
	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/logger"
	"electroshop_backend/internal/models"
	"electroshop_backend/internal/repositories"
	"electroshop_backend/pkg/apperrors"

	"gorm.io/gorm"
)

type AuthService interface {
	Register(ctx context.Context, db *gorm.DB, req *dto.RegisterRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, db *gorm.DB, req *dto.LoginRequest, ip string) (*dto.AuthResponse, error)
	Me(ctx context.Context, db *gorm.DB, userID string) (*dto.UserDTO, error)
	SeedAdmin(ctx context.Context, db *gorm.DB, email, password string) error
}

// LoginLimit - ограничение неудачных входов на email
type LoginLimit struct {
	MaxAttempts int
	Window      time.Duration
}

type AuthServiceImpl struct {
	userRepo repositories.UserRepository
	tokens   *auth.TokenManager
	limit    LoginLimit
	now      func() time.Time
}

func NewAuthService(userRepo repositories.UserRepository, tokens *auth.TokenManager, limit LoginLimit) AuthService {
	return &AuthServiceImpl{
		userRepo: userRepo,
		tokens:   tokens,
		limit:    limit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register - регистрация покупателя. Роль admin через API не выдается.
func (s *AuthServiceImpl) Register(ctx context.Context, db *gorm.DB, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	hash, err := auth.HashPassword(req.Password)
	switch {
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
		return nil, apperrors.ValidationError(map[string]string{"password": err.Error()})
	case err != nil:
		return nil, apperrors.InternalError(err)
	}

	user := &models.User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         models.UserRoleCustomer,
	}
	if err := s.userRepo.Create(db.WithContext(ctx), user); err != nil {
		if errors.Is(err, repositories.ErrUserAlreadyExists) {
			return nil, apperrors.ErrEmailAlreadyExists
		}
		logger.CtxWithError(ctx, "Failed to create user", err)
		return nil, apperrors.InternalError(err)
	}

	logger.CtxInfo(ctx, "User registered", "user_id", user.ID)
	return s.issue(user)
}

// Login - вход по email и паролю с ограничением частоты неудачных попыток
func (s *AuthServiceImpl) Login(ctx context.Context, db *gorm.DB, req *dto.LoginRequest, ip string) (*dto.AuthResponse, error) {
	db = db.WithContext(ctx)
	now := s.now()

	if s.limit.MaxAttempts > 0 {
		since := now.Add(-s.limit.Window)
		failed, err := s.userRepo.CountFailedLogins(db, req.Email, since)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		if failed >= int64(s.limit.MaxAttempts) {
			retryAfter := s.limit.Window
			if oldest, err := s.userRepo.OldestFailedLogin(db, req.Email, since); err == nil && oldest != nil {
				retryAfter = oldest.Add(s.limit.Window).Sub(now)
			}
			logger.CtxWarn(ctx, "Login rate limited", "ip", ip, "failed_attempts", failed)
			return nil, apperrors.ErrTooManyLoginAttempts.WithDetails(map[string]string{
				"retry_after": strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))),
			})
		}
	}

	user, err := s.userRepo.FindByEmail(db, req.Email)
	if err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, apperrors.InternalError(err)
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		if err := s.userRepo.RecordFailedLogin(db, req.Email, ip, now); err != nil {
			logger.CtxWithError(ctx, "Failed to record failed login", err)
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := s.userRepo.ClearFailedLogins(db, req.Email); err != nil {
		logger.CtxWithError(ctx, "Failed to clear failed logins", err, "user_id", user.ID)
	}

	logger.CtxInfo(ctx, "User logged in", "user_id", user.ID, "ip", ip)
	return s.issue(user)
}

func (s *AuthServiceImpl) Me(ctx context.Context, db *gorm.DB, userID string) (*dto.UserDTO, error) {
	user, err := s.userRepo.FindByID(db.WithContext(ctx), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.NewNotFoundError("user", "User not found")
		}
		return nil, apperrors.InternalError(err)
	}
	u := dto.NewUserDTO(user)
	return &u, nil
}

// SeedAdmin создает первого администратора, если его еще нет
func (s *AuthServiceImpl) SeedAdmin(ctx context.Context, db *gorm.DB, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	db = db.WithContext(ctx)

	if _, err := s.userRepo.FindByEmail(db, email); err == nil {
		return nil
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &models.User{
		Email:        email,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         models.UserRoleAdmin,
	}
	if err := s.userRepo.Create(db, admin); err != nil {
		if errors.Is(err, repositories.ErrUserAlreadyExists) {
			return nil
		}
		return err
	}
	logger.CtxInfo(ctx, "First administrator created", "user_id", admin.ID)
	return nil
}

func (s *AuthServiceImpl) issue(user *models.User) (*dto.AuthResponse, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return &dto.AuthResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        dto.NewUserDTO(user),
	}, nil
}
