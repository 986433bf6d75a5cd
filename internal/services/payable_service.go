package services

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/config"
	"github.com/sony/gobreaker"
)

// PAYableEnvironmentURLs maps environment names to their gateway base URLs
var PAYableEnvironmentURLs = map[string]string{
	"sandbox":    "https://sandboxipgpayment.payable.lk/ipg/sandbox",
	"production": "https://ipgpayment.payable.lk/ipg/pro",
}

// ErrGatewayUnavailable is returned when the gateway cannot be reached or the breaker is open
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// PAYableGateway is a PaymentGateway backed by the PAYable HTTP API.
// Calls go through a circuit breaker that opens after repeated transport
// failures; declines do not count as failures.
type PAYableGateway struct {
	config  *config.PaymentConfig
	logger  *logrus.Logger
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	baseURL string
}

// payableAuthorizeRequest is the body sent to /authorize.
// merchantToken is never sent; it only feeds checkValue.
type payableAuthorizeRequest struct {
	MerchantKey         string `json:"merchantKey"`
	InvoiceID           string `json:"invoiceId"`
	Amount              string `json:"amount"`
	CurrencyCode        string `json:"currencyCode"`
	PaymentMethod       string `json:"paymentMethod"`
	OrderDescription    string `json:"orderDescription,omitempty"`
	CustomerName        string `json:"customerName,omitempty"`
	CustomerEmail       string `json:"customerEmail,omitempty"`
	CustomerMobilePhone string `json:"customerMobilePhone,omitempty"`
	CheckValue          string `json:"checkValue"`
}

type payableAuthorizeResponse struct {
	Status        string `json:"status"` // APPROVED, DECLINED
	TransactionID string `json:"transactionId"`
	Message       string `json:"message,omitempty"`
}

type payableRefundRequest struct {
	MerchantKey    string `json:"merchantKey"`
	TransactionID  string `json:"transactionId"`
	IdempotencyKey string `json:"idempotencyKey"`
	CheckValue     string `json:"checkValue"`
}

type payableRefundResponse struct {
	Status  string `json:"status"` // REFUNDED
	Message string `json:"message,omitempty"`
}

// NewPAYableGateway creates a new PAYable payment gateway
func NewPAYableGateway(cfg *config.PaymentConfig, logger *logrus.Logger) *PAYableGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		var ok bool
		baseURL, ok = PAYableEnvironmentURLs[cfg.Environment]
		if !ok {
			baseURL = PAYableEnvironmentURLs["sandbox"]
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	g := &PAYableGateway{
		config:  cfg,
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payable",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Payment gateway circuit breaker changed state")
		},
	})
	return g
}

// Name returns the gateway name
func (g *PAYableGateway) Name() string {
	return "payable"
}

// IsConfigured reports whether merchant credentials are present
func (g *PAYableGateway) IsConfigured() bool {
	return g.config.MerchantKey != "" && g.config.MerchantToken != ""
}

// GenerateCheckValue creates the SHA-512 checkValue for PAYable authentication
// Step 1: hash1 = SHA512(merchantToken) uppercase hex
// Step 2: hash2 = SHA512("merchantKey|reference|amount|currencyCode|hash1") uppercase hex
func (g *PAYableGateway) GenerateCheckValue(reference, amount, currencyCode string) string {
	hash1 := sha512.Sum512([]byte(g.config.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		g.config.MerchantKey,
		reference,
		amount,
		currencyCode,
		hash1Hex,
	)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// Authorize charges the customer
func (g *PAYableGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*PaymentAuthorization, error) {
	if !g.IsConfigured() {
		return nil, fmt.Errorf("%w: missing merchant credentials", ErrGatewayUnavailable)
	}

	currency := req.Currency
	if currency == "" {
		currency = g.config.Currency
	}
	amount := fmt.Sprintf("%.2f", req.Amount)

	body := payableAuthorizeRequest{
		MerchantKey:         g.config.MerchantKey,
		InvoiceID:           req.InvoiceID,
		Amount:              amount,
		CurrencyCode:        currency,
		PaymentMethod:       req.PaymentMethod,
		OrderDescription:    req.Description,
		CustomerName:        req.CustomerName,
		CustomerEmail:       req.CustomerEmail,
		CustomerMobilePhone: req.CustomerPhone,
		CheckValue:          g.GenerateCheckValue(req.InvoiceID, amount, currency),
	}

	g.logger.WithFields(logrus.Fields{
		"invoice_id": req.InvoiceID,
		"amount":     amount,
		"currency":   currency,
	}).Info("Authorizing payment")

	var resp payableAuthorizeResponse
	if err := g.post(ctx, "/authorize", body, &resp); err != nil {
		return nil, err
	}

	switch strings.ToUpper(resp.Status) {
	case "APPROVED", "SUCCESS":
		if resp.TransactionID == "" {
			return nil, fmt.Errorf("%w: approval without transaction id", ErrGatewayUnavailable)
		}
		g.logger.WithFields(logrus.Fields{
			"invoice_id":     req.InvoiceID,
			"transaction_id": resp.TransactionID,
		}).Info("Payment approved")
		return &PaymentAuthorization{Approved: true, TransactionRef: resp.TransactionID}, nil
	case "DECLINED", "FAILED":
		g.logger.WithFields(logrus.Fields{
			"invoice_id": req.InvoiceID,
			"reason":     resp.Message,
		}).Info("Payment declined")
		return &PaymentAuthorization{Approved: false, DeclineReason: resp.Message}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected status %q", ErrGatewayUnavailable, resp.Status)
	}
}

// Refund returns a captured payment. The idempotency key makes retries safe.
func (g *PAYableGateway) Refund(ctx context.Context, transactionRef, idempotencyKey string) error {
	if !g.IsConfigured() {
		return fmt.Errorf("%w: missing merchant credentials", ErrGatewayUnavailable)
	}

	body := payableRefundRequest{
		MerchantKey:    g.config.MerchantKey,
		TransactionID:  transactionRef,
		IdempotencyKey: idempotencyKey,
		CheckValue:     g.GenerateCheckValue(transactionRef, idempotencyKey, g.config.Currency),
	}

	var resp payableRefundResponse
	if err := g.post(ctx, "/refund", body, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Status, "REFUNDED") {
		return fmt.Errorf("refund rejected: %s", resp.Message)
	}

	g.logger.WithFields(logrus.Fields{
		"transaction_id":  transactionRef,
		"idempotency_key": idempotencyKey,
	}).Info("Payment refunded")
	return nil
}

// post sends a JSON request through the circuit breaker. Transport errors and
// 5xx responses count as breaker failures.
func (g *PAYableGateway) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
		}
		return &gatewayResponse{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		g.logger.WithError(err).WithField("path", path).Error("Payment gateway call failed")
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	res := raw.(*gatewayResponse)
	if res.status != http.StatusOK {
		return fmt.Errorf("%w: gateway returned status %d: %s", ErrGatewayUnavailable, res.status, string(res.body))
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", ErrGatewayUnavailable, err)
	}
	return nil
}

type gatewayResponse struct {
	status int
	body   []byte
}
