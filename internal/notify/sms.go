package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSConfig holds configuration for sending SMS via Twilio.
type SMSConfig struct {
	AccountSID   string // Twilio Account SID
	AuthToken    string // Twilio Auth Token
	SenderNumber string // Twilio phone number to send from (E.164 format)
	BaseURL      string // API base override, for tests
}

// SMSClient sends SMS via Twilio Programmable Messaging. A nil client is
// valid and does nothing.
type SMSClient struct {
	accountSID   string
	authToken    string
	senderNumber string
	baseURL      string
	logger       *log.Logger
	httpClient   *http.Client
}

// NewSMSClient creates an SMS client. Returns nil when credentials are
// missing; SMS is an optional channel.
func NewSMSClient(cfg SMSConfig, logger *log.Logger) *SMSClient {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.SenderNumber == "" {
		logger.Println("SMS: missing Twilio credentials, SMS disabled")
		return nil
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}

	logger.Printf("SMS: client initialized (sender=%s)", cfg.SenderNumber)

	return &SMSClient{
		accountSID:   cfg.AccountSID,
		authToken:    cfg.AuthToken,
		senderNumber: cfg.SenderNumber,
		baseURL:      baseURL,
		logger:       logger,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send sends one SMS to a phone number.
func (c *SMSClient) Send(ctx context.Context, to, body string) error {
	if c == nil {
		return nil
	}

	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	data := url.Values{}
	data.Set("To", to)
	data.Set("From", c.senderNumber)
	data.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("Twilio API error: %d - %v", resp.StatusCode, errResp)
	}

	return nil
}
