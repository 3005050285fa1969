package queue

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"creatorlink-api/internal/domain"
	"creatorlink-api/internal/email"
	"creatorlink-api/internal/repository"
)

const (
	workerConcurrency = 5
	// Un tick cada 100ms acota el consumo global a 10 jobs por segundo.
	rateInterval    = 100 * time.Millisecond
	promoteInterval = 500 * time.Millisecond
	dequeueTimeout  = 2 * time.Second

	// El espacio de códigos es 10^6; contra un conjunto activo pequeño la
	// probabilidad de agotar los reintentos es despreciable.
	maxCodeAttempts = 100
)

// ErrCodeSpaceExhausted señala que no se encontró un código libre tras el
// tope de regeneraciones.
var ErrCodeSpaceExhausted = errors.New("could not generate unique verification code")

// Worker consume jobs de la cola: invalida códigos previos, emite un OTP
// único, lo persiste y dispara el correo.
type Worker struct {
	queue  *Queue
	codes  repository.CodeRepository
	sender email.Sender
	logger *zap.Logger
	otpTTL time.Duration
}

func NewWorker(q *Queue, codes repository.CodeRepository, sender email.Sender, logger *zap.Logger, otpTTL time.Duration) *Worker {
	if otpTTL <= 0 {
		otpTTL = 24 * time.Hour
	}
	return &Worker{
		queue:  q,
		codes:  codes,
		sender: sender,
		logger: logger,
		otpTTL: otpTTL,
	}
}

// Run arranca el pool de consumidores y el promotor de diferidos, y bloquea
// hasta que el contexto se cancele.
func (w *Worker) Run(ctx context.Context) error {
	if w.queue == nil || w.codes == nil || w.sender == nil {
		return errors.New("worker not configured")
	}

	rate := time.NewTicker(rateInterval)
	defer rate.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.promoteLoop(ctx)
	})
	for i := 0; i < workerConcurrency; i++ {
		g.Go(func() error {
			return w.consumeLoop(ctx, rate.C)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) promoteLoop(ctx context.Context) error {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.queue.PromoteDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn("promote delayed jobs failed", zap.Error(err))
			}
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context, rate <-chan time.Time) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		job, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		select {
		case <-ctx.Done():
			// Devuelve el job en vez de perderlo en el apagado.
			_, _ = w.queue.RecordFailure(context.Background(), *job, ctx.Err())
			return ctx.Err()
		case <-rate:
		}

		if err := w.Process(ctx, *job); err != nil {
			requeued, recErr := w.queue.RecordFailure(ctx, *job, err)
			if recErr != nil {
				w.logger.Error("record job failure failed", zap.Error(recErr), zap.String("job_id", job.ID))
			}
			w.logger.Warn("delivery job failed",
				zap.String("job_id", job.ID),
				zap.String("user_id", job.UserID),
				zap.Bool("requeued", requeued),
				zap.Error(err),
			)
			continue
		}
		if err := w.queue.RecordSuccess(ctx, *job); err != nil {
			w.logger.Warn("record job success failed", zap.Error(err), zap.String("job_id", job.ID))
		}
	}
}

// Process ejecuta un job de verificación de punta a punta. Cualquier error
// se propaga para que aplique la política de reintentos de la cola.
func (w *Worker) Process(ctx context.Context, job Job) error {
	if err := w.codes.InvalidateActiveForUser(ctx, job.UserID); err != nil {
		return fmt.Errorf("invalidate active codes: %w", err)
	}

	code, err := w.uniqueCode(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(w.otpTTL)
	record := domain.VerificationCode{
		ID:        uuid.NewString(),
		Code:      code,
		UserID:    job.UserID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := w.codes.Create(ctx, record); err != nil {
		return fmt.Errorf("persist code: %w", err)
	}

	if err := w.sender.SendVerificationOTP(ctx, job.Email, code, expiresAt); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}

	w.logger.Info("verification email sent",
		zap.String("job_id", job.ID),
		zap.String("user_id", job.UserID),
	)
	return nil
}

func (w *Worker) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		exists, err := w.codes.ActiveCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code collision: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// generateCode produce un código numérico de 6 dígitos uniforme sobre
// 000000-999999.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
