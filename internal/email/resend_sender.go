package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultResendBaseURL = "https://api.resend.com"

// ResendSender envia correos usando la API HTTP de Resend.
type ResendSender struct {
	baseURL     string
	apiKey      string
	from        string
	frontendURL string
	client      *http.Client
}

// NewResendSender construye un sender apuntando a la API de Resend.
func NewResendSender(apiKey, from, frontendURL string) (*ResendSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendSender{
		baseURL:     defaultResendBaseURL,
		apiKey:      apiKey,
		from:        from,
		frontendURL: frontendURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (s *ResendSender) SendVerificationOTP(ctx context.Context, toEmail string, code string, expiresAt time.Time) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("to email is required")
	}

	subject, html, text := buildVerificationBodies(code, s.frontendURL, expiresAt)
	reqBody := resendRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: subject,
		HTML:    html,
		Text:    text,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var rr resendResponse
		if json.Unmarshal(respBody, &rr) == nil && rr.Message != "" {
			return fmt.Errorf("resend api error: status=%d message=%s", resp.StatusCode, rr.Message)
		}
		return fmt.Errorf("resend http error: status=%d", resp.StatusCode)
	}
	return nil
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}
