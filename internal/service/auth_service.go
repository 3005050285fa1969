package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"creatorlink-api/internal/domain"
	"creatorlink-api/internal/repository"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")
	ErrWeakPassword       = errors.New("password too short")
)

const (
	bcryptCost        = 10
	minPasswordLength = 6
)

// EventPublisher publica eventos de seguridad. Puede ser nil.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, userID, email string) error
}

// AuthService maneja registro y login de usuarios.
type AuthService struct {
	logger       *zap.Logger
	users        repository.UserRepository
	verification *VerificationService
	events       EventPublisher
}

func NewAuthService(logger *zap.Logger, users repository.UserRepository, verification *VerificationService, events EventPublisher) *AuthService {
	return &AuthService{
		logger:       logger,
		users:        users,
		verification: verification,
		events:       events,
	}
}

// Register crea el usuario sin verificar y dispara, como efecto secundario
// best-effort, el encolado del correo de verificación. Un fallo de la cola
// se loguea pero nunca aborta el registro.
func (s *AuthService) Register(ctx context.Context, emailAddr, password string, role domain.Role) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}

	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return domain.User{}, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return domain.User{}, ErrWeakPassword
	}
	if !domain.ValidRole(role) {
		return domain.User{}, ErrInvalidRole
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		PasswordHash: string(hashBytes),
		Role:         role,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	if s.verification != nil {
		if err := s.verification.RequestVerification(ctx, user.ID, user.Email); err != nil {
			s.logger.Warn("queue verification email failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}
	s.publish(ctx, "user.registered", user.ID, user.Email)

	return user, nil
}

// Login valida credenciales. Email desconocido y contraseña incorrecta
// devuelven el mismo error para no filtrar qué cuentas existen.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}

	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.publish(ctx, "login.failed", "", emailAddr)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.publish(ctx, "login.failed", user.ID, emailAddr)
		return domain.User{}, ErrInvalidCredentials
	}

	s.publish(ctx, "login.succeeded", user.ID, user.Email)
	return user, nil
}

func (s *AuthService) publish(ctx context.Context, eventType, userID, emailAddr string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, userID, emailAddr); err != nil && s.logger != nil {
		s.logger.Warn("publish security event failed",
			zap.String("event", eventType),
			zap.Error(err),
		)
	}
}
