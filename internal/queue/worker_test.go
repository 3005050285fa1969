package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"creatorlink-api/internal/domain"
)

type workerCodeRepo struct {
	invalidated []string
	created     []domain.VerificationCode
	// existsResponses alimenta ActiveCodeExists en orden; agotada la lista
	// devuelve false.
	existsResponses []bool
	existsCalls     int

	invalidateErr error
	createErr     error
	existsErr     error
}

func (m *workerCodeRepo) Create(_ context.Context, code domain.VerificationCode) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, code)
	return nil
}

func (m *workerCodeRepo) InvalidateActiveForUser(_ context.Context, userID string) error {
	if m.invalidateErr != nil {
		return m.invalidateErr
	}
	m.invalidated = append(m.invalidated, userID)
	return nil
}

func (m *workerCodeRepo) ActiveCodeExists(_ context.Context, _ string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	idx := m.existsCalls
	m.existsCalls++
	if idx < len(m.existsResponses) {
		return m.existsResponses[idx], nil
	}
	return false, nil
}

func (m *workerCodeRepo) Confirm(_ context.Context, _ string) (string, error) {
	return "", errors.New("not used by worker")
}

func (m *workerCodeRepo) DeleteExpiredAndStale(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

type workerEmailSender struct {
	lastTo      string
	lastCode    string
	lastExpires time.Time
	calls       int
	err         error
}

func (m *workerEmailSender) SendVerificationOTP(_ context.Context, toEmail string, code string, expiresAt time.Time) error {
	m.calls++
	m.lastTo = toEmail
	m.lastCode = code
	m.lastExpires = expiresAt
	return m.err
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	return strings.IndexFunc(code, func(r rune) bool { return r < '0' || r > '9' }) == -1
}

func TestWorkerProcess_HappyPath(t *testing.T) {
	repo := &workerCodeRepo{}
	sender := &workerEmailSender{}
	w := NewWorker(nil, repo, sender, zap.NewNop(), 24*time.Hour)

	job := Job{ID: "j1", UserID: "u1", Email: "a@x.com"}
	before := time.Now().UTC()
	if err := w.Process(context.Background(), job); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if len(repo.invalidated) != 1 || repo.invalidated[0] != "u1" {
		t.Fatalf("expected previous codes invalidated for u1, got %+v", repo.invalidated)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one code created, got %d", len(repo.created))
	}
	created := repo.created[0]
	if !isSixDigits(created.Code) {
		t.Fatalf("expected 6-digit code, got %q", created.Code)
	}
	if created.UserID != "u1" || created.UsedAt != nil {
		t.Fatalf("unexpected code record: %+v", created)
	}
	ttl := created.ExpiresAt.Sub(before)
	if ttl < 23*time.Hour || ttl > 25*time.Hour {
		t.Fatalf("expected ~24h expiry, got %v", ttl)
	}
	if sender.calls != 1 || sender.lastTo != "a@x.com" || sender.lastCode != created.Code {
		t.Fatalf("expected email with persisted code, got %+v", sender)
	}
}

func TestWorkerProcess_RegeneratesOnCollision(t *testing.T) {
	repo := &workerCodeRepo{existsResponses: []bool{true, true, false}}
	sender := &workerEmailSender{}
	w := NewWorker(nil, repo, sender, zap.NewNop(), time.Hour)

	if err := w.Process(context.Background(), Job{ID: "j1", UserID: "u1", Email: "a@x.com"}); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if repo.existsCalls != 3 {
		t.Fatalf("expected 3 collision checks, got %d", repo.existsCalls)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one code persisted after regeneration")
	}
}

func TestWorkerProcess_CollisionCapExhausted(t *testing.T) {
	responses := make([]bool, maxCodeAttempts)
	for i := range responses {
		responses[i] = true
	}
	repo := &workerCodeRepo{existsResponses: responses}
	sender := &workerEmailSender{}
	w := NewWorker(nil, repo, sender, zap.NewNop(), time.Hour)

	err := w.Process(context.Background(), Job{ID: "j1", UserID: "u1", Email: "a@x.com"})
	if !errors.Is(err, ErrCodeSpaceExhausted) {
		t.Fatalf("expected ErrCodeSpaceExhausted, got %v", err)
	}
	if len(repo.created) != 0 || sender.calls != 0 {
		t.Fatalf("exhausted generation must not persist nor send")
	}
}

func TestWorkerProcess_FailuresPropagate(t *testing.T) {
	t.Run("invalidate failure", func(t *testing.T) {
		repo := &workerCodeRepo{invalidateErr: errors.New("db down")}
		w := NewWorker(nil, repo, &workerEmailSender{}, zap.NewNop(), time.Hour)
		if err := w.Process(context.Background(), Job{UserID: "u1", Email: "a@x.com"}); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("create failure", func(t *testing.T) {
		repo := &workerCodeRepo{createErr: errors.New("db down")}
		w := NewWorker(nil, repo, &workerEmailSender{}, zap.NewNop(), time.Hour)
		if err := w.Process(context.Background(), Job{UserID: "u1", Email: "a@x.com"}); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("send failure", func(t *testing.T) {
		repo := &workerCodeRepo{}
		sender := &workerEmailSender{err: errors.New("provider down")}
		w := NewWorker(nil, repo, sender, zap.NewNop(), time.Hour)
		if err := w.Process(context.Background(), Job{UserID: "u1", Email: "a@x.com"}); err == nil {
			t.Fatalf("expected error")
		}
		// El código ya quedó persistido; el retry del job lo invalidará.
		if len(repo.created) != 1 {
			t.Fatalf("expected code persisted before send")
		}
	})
}

func TestGenerateCode_Format(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		if !isSixDigits(code) {
			t.Fatalf("expected 6-digit numeric code, got %q", code)
		}
	}
}
