// Package payments starts external mobile-money charges and reconciles the
// asynchronous provider callbacks against pending journal rows.
package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrCredentialsMissing = errors.New("payment gateway credentials missing")
	ErrProviderError      = errors.New("payment provider error")
	ErrDuplicateCard      = errors.New("user already owns a virtual card")
)

// STKRequest asks the gateway to push a payment prompt to the payer's phone.
type STKRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Phone       string          `json:"phone_number"`
	Reference   string          `json:"external_reference"`
	Description string          `json:"description"`
}

// STKResponse is the synchronous half of an STK push. Confirmation arrives
// later through the callback, not here.
type STKResponse struct {
	Success           bool   `json:"success"`
	Status            string `json:"status"`
	ProviderReference string `json:"reference"`
	CheckoutID        string `json:"checkout_request_id"`
}

// StatusResponse is the gateway's view of a previously initiated payment.
type StatusResponse struct {
	Reference  string `json:"external_reference"`
	Status     string `json:"status"`
	ResultCode int    `json:"result_code"`
}

// Gateway is the narrow contract the initiator and reconciler need from the
// mobile-money provider.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, req STKRequest) (*STKResponse, error)
	TransactionStatus(ctx context.Context, reference string) (*StatusResponse, error)
}

// PayHeroClient talks to the PayHero HTTP API with basic-auth credentials.
type PayHeroClient struct {
	baseURL     string
	username    string
	password    string
	channelID   int
	callbackURL string
	http        *http.Client
}

// NewPayHeroClient builds a gateway client. Empty credentials are allowed at
// construction; calls fail with ErrCredentialsMissing instead.
func NewPayHeroClient(baseURL, username, password string, channelID int, callbackURL string) *PayHeroClient {
	return &PayHeroClient{
		baseURL:     baseURL,
		username:    username,
		password:    password,
		channelID:   channelID,
		callbackURL: callbackURL,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *PayHeroClient) authHeader() string {
	token := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
	return "Basic " + token
}

// InitiateSTKPush asks the gateway to prompt the payer's phone.
func (c *PayHeroClient) InitiateSTKPush(ctx context.Context, req STKRequest) (*STKResponse, error) {
	if c.username == "" || c.password == "" {
		return nil, ErrCredentialsMissing
	}
	body := map[string]any{
		"amount":             req.Amount.IntPart(),
		"phone_number":       req.Phone,
		"channel_id":         c.channelID,
		"provider":           "m-pesa",
		"external_reference": req.Reference,
		"description":        req.Description,
		"callback_url":       c.callbackURL,
	}
	var out STKResponse
	if err := c.do(ctx, http.MethodPost, "/payments", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransactionStatus queries the gateway for the state of a payment.
func (c *PayHeroClient) TransactionStatus(ctx context.Context, reference string) (*StatusResponse, error) {
	if c.username == "" || c.password == "" {
		return nil, ErrCredentialsMissing
	}
	var out StatusResponse
	path := "/transaction-status?reference=" + reference
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PayHeroClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: gateway returned %d", ErrProviderError, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
