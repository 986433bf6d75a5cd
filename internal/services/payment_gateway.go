package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuthorizeRequest is a request to charge a customer for a hold
type AuthorizeRequest struct {
	InvoiceID     string // hold id; doubles as the idempotency key
	Amount        float64
	Currency      string
	PaymentMethod string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Description   string
}

// PaymentAuthorization is the collaborator's verdict on a charge
type PaymentAuthorization struct {
	Approved       bool
	TransactionRef string
	DeclineReason  string
}

// PaymentGateway is the external payment collaborator.
// A decline is a normal result, not an error; errors mean the gateway could
// not be reached or answered nonsense.
type PaymentGateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*PaymentAuthorization, error)
	Refund(ctx context.Context, transactionRef, idempotencyKey string) error
	Name() string
}

// SandboxPaymentGateway approves every charge without calling out, except
// payment methods prefixed with "decline", which are declined.
type SandboxPaymentGateway struct {
	logger *logrus.Logger
}

// NewSandboxPaymentGateway creates a sandbox gateway
func NewSandboxPaymentGateway(logger *logrus.Logger) *SandboxPaymentGateway {
	return &SandboxPaymentGateway{logger: logger}
}

// Name returns the gateway name
func (g *SandboxPaymentGateway) Name() string {
	return "sandbox"
}

// Authorize approves or declines based on the payment method
func (g *SandboxPaymentGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*PaymentAuthorization, error) {
	if strings.HasPrefix(strings.ToLower(req.PaymentMethod), "decline") {
		g.logger.WithFields(logrus.Fields{
			"invoice_id": req.InvoiceID,
			"amount":     req.Amount,
		}).Warn("⚠️  Sandbox payment declined")
		return &PaymentAuthorization{Approved: false, DeclineReason: "declined by sandbox"}, nil
	}

	ref := fmt.Sprintf("SANDBOX-%s", strings.ToUpper(uuid.NewString()[:8]))
	g.logger.WithFields(logrus.Fields{
		"invoice_id":      req.InvoiceID,
		"amount":          req.Amount,
		"currency":        req.Currency,
		"transaction_ref": ref,
	}).Warn("⚠️  Sandbox payment approved - no money was moved")
	return &PaymentAuthorization{Approved: true, TransactionRef: ref}, nil
}

// Refund logs the refund
func (g *SandboxPaymentGateway) Refund(ctx context.Context, transactionRef, idempotencyKey string) error {
	g.logger.WithFields(logrus.Fields{
		"transaction_ref": transactionRef,
		"idempotency_key": idempotencyKey,
	}).Warn("⚠️  Sandbox refund recorded")
	return nil
}
