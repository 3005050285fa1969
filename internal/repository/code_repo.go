package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorlink-api/internal/domain"
)

// ErrCodeNotFound señala que no existe un código activo con ese valor.
var ErrCodeNotFound = errors.New("verification code not found")

// CodeRepository define el contrato de persistencia para códigos OTP.
type CodeRepository interface {
	Create(ctx context.Context, code domain.VerificationCode) error
	InvalidateActiveForUser(ctx context.Context, userID string) error
	ActiveCodeExists(ctx context.Context, code string) (bool, error)
	Confirm(ctx context.Context, code string) (string, error)
	DeleteExpiredAndStale(ctx context.Context, usedRetention time.Duration) (int64, error)
}

// PgCodeRepository implementa CodeRepository usando pgxpool.
type PgCodeRepository struct {
	pool *pgxpool.Pool
}

func NewPgCodeRepository(pool *pgxpool.Pool) *PgCodeRepository {
	return &PgCodeRepository{pool: pool}
}

func (r *PgCodeRepository) Create(ctx context.Context, code domain.VerificationCode) error {
	const query = `
		INSERT INTO verification_codes (id, code, user_id, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		code.ID,
		code.Code,
		code.UserID,
		code.ExpiresAt,
		code.UsedAt,
		code.CreatedAt,
	)
	return err
}

func (r *PgCodeRepository) InvalidateActiveForUser(ctx context.Context, userID string) error {
	const query = `
		UPDATE verification_codes
		SET used_at = $2
		WHERE user_id = $1 AND used_at IS NULL
	`
	_, err := r.pool.Exec(ctx, query, userID, time.Now().UTC())
	return err
}

func (r *PgCodeRepository) ActiveCodeExists(ctx context.Context, code string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM verification_codes
			WHERE code = $1 AND used_at IS NULL AND expires_at >= $2
		)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, code, time.Now().UTC()).Scan(&exists)
	return exists, err
}

// Confirm consume el código y marca al usuario como verificado en una sola
// transacción. Devuelve el id del usuario afectado.
func (r *PgCodeRepository) Confirm(ctx context.Context, code string) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	const selectQuery = `
		SELECT id, user_id FROM verification_codes
		WHERE code = $1 AND used_at IS NULL AND expires_at >= $2
		FOR UPDATE
	`
	var codeID, userID string
	err = tx.QueryRow(ctx, selectQuery, code, now).Scan(&codeID, &userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCodeNotFound
	}
	if err != nil {
		return "", err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE verification_codes SET used_at = $2 WHERE id = $1`,
		codeID, now,
	); err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1`,
		userID, now,
	); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return userID, nil
}

// DeleteExpiredAndStale borra códigos vencidos y códigos usados con
// antigüedad mayor a la retención indicada.
func (r *PgCodeRepository) DeleteExpiredAndStale(ctx context.Context, usedRetention time.Duration) (int64, error) {
	now := time.Now().UTC()
	const query = `
		DELETE FROM verification_codes
		WHERE expires_at < $1
		   OR (used_at IS NOT NULL AND created_at < $2)
	`
	tag, err := r.pool.Exec(ctx, query, now, now.Add(-usedRetention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
