package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookSMSTransport posts one-time codes to a configurable SMS
// gateway endpoint.  The gateway contract is a JSON body with the
// destination and message; the bearer key authenticates us.
type WebhookSMSTransport struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewWebhookSMSTransport returns a transport for the given gateway.
func NewWebhookSMSTransport(endpoint, apiKey string) *WebhookSMSTransport {
	return &WebhookSMSTransport{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *WebhookSMSTransport) Send(ctx context.Context, contact, code string) error {
	body, err := json.Marshal(map[string]string{
		"to":      contact,
		"message": fmt.Sprintf("Your verification code is %s. It expires in 5 minutes.", code),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogTransport writes codes to the process log instead of sending them.
// Development and test environments use it so no gateway account is
// needed to exercise the verification flow.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, contact, code string) error {
	log.Printf("otp: code for %s is %s", contact, code)
	return nil
}
