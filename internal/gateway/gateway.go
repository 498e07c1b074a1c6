// Package gateway is the boundary to the external card-payment provider.
// Only the contract lives here: creating payment intents and verifying the
// signature on asynchronous payment-outcome notifications.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Metadata keys the platform attaches to payment intents so webhook
// notifications can be correlated back to ledger state.
const (
	MetaTopUpTransactionID = "topup_transaction_id"
	MetaOrderID            = "order_id"
)

// EventPaymentSucceeded is the only notification type that triggers
// ledger action; all other types are accepted and ignored.
const EventPaymentSucceeded = "payment_intent.succeeded"

// SignatureHeader carries the hex HMAC-SHA256 of the raw notification body.
const SignatureHeader = "X-Gateway-Signature"

var ErrSignatureVerification = errors.New("notification signature verification failed")

type IntentRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	CallbackURL string            `json:"callback_url"`
	Metadata    map[string]string `json:"metadata"`
}

type PaymentIntent struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Notification is the asynchronous payment-outcome payload delivered to
// the inbound webhook endpoint.
type Notification struct {
	Type string           `json:"type"`
	Data NotificationData `json:"data"`
}

type NotificationData struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// PaymentGateway is the abstract provider contract the balance service and
// webhook handler depend on.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*PaymentIntent, error)
	VerifySignature(payload []byte, signature string) bool
}

// Client talks to the provider's REST API.
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret []byte
	httpClient    *http.Client
}

func NewClient(baseURL, apiKey, webhookSecret string) *Client {
	return &Client{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: []byte(webhookSecret),
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*PaymentIntent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, snippet)
	}

	var intent PaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("decoding gateway response: %w", err)
	}

	return &intent, nil
}

// VerifySignature checks the hex HMAC-SHA256 of the raw payload against
// the shared webhook secret. Comparison is constant-time.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, c.webhookSecret)
	h.Write(payload)
	return hmac.Equal(sig, h.Sum(nil))
}
