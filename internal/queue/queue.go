package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Claves del broker en redis. Los registros de jobs terminados se guardan
// con TTL para inspección posterior.
const (
	pendingKey   = "verification:queue:pending"
	delayedKey   = "verification:queue:delayed"
	jobKeyPrefix = "verification:queue:job:"

	maxAttempts        = 3
	baseBackoff        = time.Second
	completedRetention = 24 * time.Hour
	failedRetention    = 7 * 24 * time.Hour
)

// Job describe un pedido de envío de correo de verificación.
type Job struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// jobRecord es lo que se persiste al completar o agotar un job.
type jobRecord struct {
	Job        Job       `json:"job"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

type queueRedis interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Queue es la cola de entrega respaldada por redis: lista de pendientes,
// sorted set de reintentos diferidos y registros con retención.
type Queue struct {
	client queueRedis
	logger *zap.Logger
}

func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	return &Queue{client: client, logger: logger}
}

// Enqueue publica un job nuevo de verificación para el usuario.
func (q *Queue) Enqueue(ctx context.Context, userID, email string) error {
	if q == nil || q.client == nil {
		return errors.New("queue not configured")
	}
	job := Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		Email:      email,
		EnqueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, pendingKey, payload).Err()
}

// Dequeue bloquea hasta obtener un job pendiente o vencer el timeout.
// Sin jobs disponibles devuelve nil, nil.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, pendingKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, errors.New("unexpected brpop reply")
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// RecordSuccess registra el job como completado, con retención de 24h.
func (q *Queue) RecordSuccess(ctx context.Context, job Job) error {
	return q.writeRecord(ctx, job, "completed", "", completedRetention)
}

// RecordFailure suma un intento: si quedan reintentos, difiere el job con
// backoff exponencial; si no, lo registra como fallido con retención de 7d.
// Devuelve true cuando el job fue reencolado.
func (q *Queue) RecordFailure(ctx context.Context, job Job, cause error) (bool, error) {
	job.Attempts++
	if job.Attempts < maxAttempts {
		payload, err := json.Marshal(job)
		if err != nil {
			return false, err
		}
		readyAt := time.Now().UTC().Add(backoffDelay(job.Attempts))
		err = q.client.ZAdd(ctx, delayedKey, redis.Z{
			Score:  float64(readyAt.UnixMilli()),
			Member: payload,
		}).Err()
		return err == nil, err
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if q.logger != nil {
		q.logger.Error("delivery job permanently failed",
			zap.String("job_id", job.ID),
			zap.String("user_id", job.UserID),
			zap.Int("attempts", job.Attempts),
			zap.Error(cause),
		)
	}
	return false, q.writeRecord(ctx, job, "failed", msg, failedRetention)
}

// PromoteDue mueve a pendientes los jobs diferidos cuyo backoff ya venció.
func (q *Queue) PromoteDue(ctx context.Context) error {
	now := time.Now().UTC().UnixMilli()
	members, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: 100,
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range members {
		// ZRem decide el ganador si hay varios promotores corriendo.
		removed, err := q.client.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, pendingKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) writeRecord(ctx context.Context, job Job, status, errMsg string, retention time.Duration) error {
	record := jobRecord{
		Job:        job,
		Status:     status,
		Error:      errMsg,
		FinishedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, jobKeyPrefix+job.ID, payload, retention).Err()
}

// backoffDelay implementa backoff exponencial: 1s, 2s, 4s.
func backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return baseBackoff << (attempts - 1)
}
