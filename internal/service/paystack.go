package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/orro/bus-booking/internal/utils"
)

// PaystackClient implements PaymentProvider against the Paystack HTTP
// API.  Amounts are in kobo throughout, matching both Paystack's wire
// format and the rest of this codebase, so no conversion happens here.
type PaystackClient struct {
	baseURL     string
	secretKey   string
	callbackURL string
	httpClient  *http.Client
}

// NewPaystackClient returns a client for the given API base and secret.
// callbackURL is where Paystack redirects the passenger after payment;
// the redirect carries the reference the reconciler verifies.
func NewPaystackClient(baseURL, secretKey, callbackURL string) *PaystackClient {
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &PaystackClient{
		baseURL:     baseURL,
		secretKey:   secretKey,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

type paystackInitRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type paystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// CreateIntent initializes a transaction.  The reference is generated
// here rather than by the provider so the session can be linked to the
// callback even if the initialize response is lost.
func (p *PaystackClient) CreateIntent(ctx context.Context, email string, amountKobo int64) (*PaymentIntent, error) {
	ref, err := utils.RandomHex(16)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(paystackInitRequest{
		Email:       email,
		Amount:      amountKobo,
		Reference:   ref,
		CallbackURL: p.callbackURL,
	})
	if err != nil {
		return nil, err
	}
	var out paystackInitResponse
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack: initialize rejected: %s", out.Message)
	}
	return &PaymentIntent{
		Reference:        out.Data.Reference,
		AuthorizationURL: out.Data.AuthorizationURL,
	}, nil
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// VerifyTransaction fetches the provider's view of a transaction.  Used
// by the redirect-verification endpoint so settlement never trusts
// query parameters the passenger's browser carried.
func (p *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (PaymentCallback, error) {
	var out paystackVerifyResponse
	if err := p.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &out); err != nil {
		return PaymentCallback{}, err
	}
	if !out.Status {
		return PaymentCallback{}, fmt.Errorf("paystack: verify rejected: %s", out.Message)
	}
	cb := PaymentCallback{
		Reference:  out.Data.Reference,
		AmountKobo: out.Data.Amount,
	}
	switch out.Data.Status {
	case "success":
		cb.Status = CallbackSuccess
	case "abandoned", "timeout":
		cb.Status = CallbackTimeout
	default:
		cb.Status = CallbackFailed
	}
	return cb, nil
}

func (p *PaystackClient) do(ctx context.Context, method, path string, body *bytes.Reader, out interface{}) error {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, p.baseURL+path, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paystack: %s %s returned %d", method, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
