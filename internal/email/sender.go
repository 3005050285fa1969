package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sender define la interfaz para envio de correos de verificacion.
type Sender interface {
	SendVerificationOTP(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerificationOTP(_ context.Context, _ string, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

// buildVerificationBodies arma el asunto y los cuerpos HTML y texto del
// correo de verificacion, con enlace directo al frontend.
func buildVerificationBodies(code, frontendURL string, expiresAt time.Time) (subject, html, text string) {
	verifyURL := strings.TrimRight(frontendURL, "/") + "/verify-email?token=" + code

	subject = "Verify your email"
	html = fmt.Sprintf(`
		<h2>Verify your email address</h2>
		<p>Your verification code is: <strong>%s</strong></p>
		<p><a href="%s">Verify email address</a></p>
		<p>This code expires at %s UTC.</p>
		<p>If you did not create an account, you can ignore this email.</p>
	`, code, verifyURL, expiresAt.UTC().Format(time.RFC3339))
	text = fmt.Sprintf(
		"Your verification code is %s.\nVerify at: %s\nIt expires at %s UTC.\n",
		code,
		verifyURL,
		expiresAt.UTC().Format(time.RFC3339),
	)
	return subject, html, text
}
