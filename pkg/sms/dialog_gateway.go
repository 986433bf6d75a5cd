package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DialogGateway implements SMS sending via Dialog eSMS API v2
type DialogGateway struct {
	apiURL   string
	username string
	password string
	mask     string
	client   *http.Client

	// Token management
	token       string
	tokenMutex  sync.RWMutex
	tokenExpiry time.Time
}

// DialogConfig holds configuration for Dialog SMS Gateway
type DialogConfig struct {
	APIURL   string
	Username string
	Password string
	Mask     string
}

// NewDialogGateway creates a new Dialog SMS Gateway client
func NewDialogGateway(config DialogConfig) *DialogGateway {
	return &DialogGateway{
		apiURL:   config.APIURL,
		username: config.Username,
		password: config.Password,
		mask:     config.Mask,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LoginRequest represents the login request structure
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the login response structure
type LoginResponse struct {
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	Token      string `json:"token"`
	Expiration int    `json:"expiration"` // Token expiry in seconds
	ErrCode    string `json:"errCode"`
}

// SMSRecipient represents a single SMS recipient
type SMSRecipient struct {
	Mobile string `json:"mobile"`
}

// SendSMSRequest represents the SMS sending request structure
type SendSMSRequest struct {
	MSISDN        []SMSRecipient `json:"msisdn"`
	Message       string         `json:"message"`
	SourceAddress string         `json:"sourceAddress,omitempty"`
	TransactionID int64          `json:"transaction_id"`
	PaymentMethod int            `json:"payment_method"` // 0 = wallet, 4 = package
}

// SendSMSResponse represents the SMS sending response structure
type SendSMSResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Data    struct {
		CampaignID   int     `json:"campaignId"`
		CampaignCost float64 `json:"campaignCost"`
	} `json:"data"`
	ErrCode string `json:"errCode"`
}

// GetAccessToken logs in and retrieves an access token
func (d *DialogGateway) GetAccessToken(ctx context.Context) error {
	var loginResp LoginResponse
	if err := d.postJSON(ctx, "/login", "", LoginRequest{Username: d.username, Password: d.password}, &loginResp); err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	if loginResp.Status != "success" {
		return fmt.Errorf("login failed: %s (error code: %s)", loginResp.Comment, loginResp.ErrCode)
	}

	d.tokenMutex.Lock()
	d.token = loginResp.Token
	d.tokenExpiry = time.Now().Add(time.Duration(loginResp.Expiration) * time.Second)
	d.tokenMutex.Unlock()

	return nil
}

// isTokenValid checks if the current token is still valid
func (d *DialogGateway) isTokenValid() bool {
	d.tokenMutex.RLock()
	defer d.tokenMutex.RUnlock()

	if d.token == "" {
		return false
	}

	// Consider token invalid 5 minutes before actual expiry
	return time.Now().Before(d.tokenExpiry.Add(-5 * time.Minute))
}

// currentToken returns a valid access token, logging in if needed
func (d *DialogGateway) currentToken(ctx context.Context) (string, error) {
	if !d.isTokenValid() {
		if err := d.GetAccessToken(ctx); err != nil {
			return "", err
		}
	}
	d.tokenMutex.RLock()
	defer d.tokenMutex.RUnlock()
	return d.token, nil
}

// SendMessage sends a message to a single phone number
func (d *DialogGateway) SendMessage(ctx context.Context, phone, message string) (int64, error) {
	formattedPhone, err := FormatPhoneForDialog(phone)
	if err != nil {
		return 0, fmt.Errorf("failed to format phone number: %w", err)
	}
	return d.send(ctx, []SMSRecipient{{Mobile: formattedPhone}}, message)
}

// SendBulkSMS sends one message to many recipients, skipping invalid numbers
func (d *DialogGateway) SendBulkSMS(ctx context.Context, phones []string, message string) (int64, error) {
	recipients := make([]SMSRecipient, 0, len(phones))
	for _, phone := range phones {
		formattedPhone, err := FormatPhoneForDialog(phone)
		if err != nil {
			continue
		}
		recipients = append(recipients, SMSRecipient{Mobile: formattedPhone})
	}
	if len(recipients) == 0 {
		return 0, fmt.Errorf("no valid recipients after formatting")
	}
	return d.send(ctx, recipients, message)
}

func (d *DialogGateway) send(ctx context.Context, recipients []SMSRecipient, message string) (int64, error) {
	token, err := d.currentToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get access token: %w", err)
	}

	transactionID := time.Now().UnixMicro()
	smsReq := SendSMSRequest{
		MSISDN:        recipients,
		Message:       message,
		SourceAddress: d.mask,
		TransactionID: transactionID,
		PaymentMethod: 0,
	}

	var smsResp SendSMSResponse
	if err := d.postJSON(ctx, "/sms", token, smsReq, &smsResp); err != nil {
		return 0, fmt.Errorf("failed to send SMS request: %w", err)
	}
	if smsResp.Status != "success" {
		return 0, fmt.Errorf("SMS sending failed: %s (error code: %s)", smsResp.Comment, smsResp.ErrCode)
	}
	return transactionID, nil
}

func (d *DialogGateway) postJSON(ctx context.Context, path, token string, in, out interface{}) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

// GetName returns the name of this SMS gateway
func (d *DialogGateway) GetName() string {
	return "Dialog API v2 Gateway"
}
