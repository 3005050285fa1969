package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"creatorlink-api/internal/repository"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrAlreadyVerified      = errors.New("email already verified")
	ErrRateLimited          = errors.New("rate limited")
	ErrCodeInvalidOrExpired = errors.New("verification code invalid or expired")
	ErrInvalidEmail         = errors.New("invalid email")
)

// usedCodeRetention controla cuánto se conservan los códigos ya usados
// antes de que el sweep los borre.
const usedCodeRetention = 30 * 24 * time.Hour

// DeliveryQueue es la vista de la cola que necesita el orquestador.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, userID, email string) error
}

// VerificationService orquesta la emisión y confirmación de códigos de
// verificación de email.
type VerificationService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	codes   repository.CodeRepository
	queue   DeliveryQueue
	limiter ResendRateLimiter
	events  EventPublisher
}

func NewVerificationService(
	logger *zap.Logger,
	users repository.UserRepository,
	codes repository.CodeRepository,
	queue DeliveryQueue,
	limiter ResendRateLimiter,
	events EventPublisher,
) *VerificationService {
	if limiter == nil {
		limiter = NewMemoryResendRateLimiter(time.Hour, 3)
	}
	return &VerificationService{
		logger:  logger,
		users:   users,
		codes:   codes,
		queue:   queue,
		limiter: limiter,
		events:  events,
	}
}

// RequestVerification encola el envío de un correo de verificación. El OTP
// lo genera el worker al procesar el job, no acá.
func (s *VerificationService) RequestVerification(ctx context.Context, userID, email string) error {
	if s == nil || s.queue == nil {
		return errors.New("verification service not configured")
	}
	if err := s.queue.Enqueue(ctx, userID, email); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("queued verification email", zap.String("user_id", userID))
	}
	return nil
}

// Confirm consume el código y marca verificado al usuario dueño, todo
// dentro de una transacción del repositorio. Devuelve el id del usuario.
func (s *VerificationService) Confirm(ctx context.Context, code string) (string, error) {
	if s == nil || s.codes == nil {
		return "", errors.New("verification service not configured")
	}
	code = strings.TrimSpace(code)
	if !isValidOTPCode(code) {
		return "", ErrCodeInvalidOrExpired
	}
	userID, err := s.codes.Confirm(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return "", ErrCodeInvalidOrExpired
		}
		return "", err
	}
	if s.logger != nil {
		s.logger.Info("user verified", zap.String("user_id", userID))
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, "user.verified", userID, ""); err != nil && s.logger != nil {
			s.logger.Warn("publish security event failed",
				zap.String("event", "user.verified"),
				zap.Error(err),
			)
		}
	}
	return userID, nil
}

// Resend valida al usuario, aplica el límite de reenvíos y encola un nuevo
// correo de verificación.
func (s *VerificationService) Resend(ctx context.Context, emailAddr string) error {
	if s == nil || s.users == nil || s.queue == nil {
		return errors.New("verification service not configured")
	}
	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return ErrInvalidEmail
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}
	if s.limiter != nil && !s.limiter.Allow(user.ID) {
		return ErrRateLimited
	}
	return s.RequestVerification(ctx, user.ID, user.Email)
}

// CleanupExpiredCodes borra códigos vencidos y códigos usados con más de 30
// días. Idempotente; pensado para correr en un ticker periódico.
func (s *VerificationService) CleanupExpiredCodes(ctx context.Context) (int64, error) {
	if s == nil || s.codes == nil {
		return 0, errors.New("verification service not configured")
	}
	count, err := s.codes.DeleteExpiredAndStale(ctx, usedCodeRetention)
	if err != nil {
		return 0, err
	}
	if s.logger != nil && count > 0 {
		s.logger.Info("cleaned up verification codes", zap.Int64("deleted", count))
	}
	return count, nil
}

func isValidOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
