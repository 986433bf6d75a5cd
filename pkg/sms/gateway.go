package sms

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SMSGateway defines the interface for sending SMS messages
type SMSGateway interface {
	// SendMessage sends a text message to one phone number.
	// Returns a transaction ID and an error if the send failed.
	SendMessage(ctx context.Context, phone, message string) (int64, error)

	// GetName returns the name of the SMS gateway implementation
	GetName() string
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// FormatPhoneForDialog converts phone number to Dialog's 9-digit format
// Input: "0771234567" (10 digits) or "94771234567" (11 digits) or "+94771234567"
// Output: "771234567" (9 digits without prefix)
func FormatPhoneForDialog(phone string) (string, error) {
	phone = nonDigits.ReplaceAllString(phone, "")

	if strings.HasPrefix(phone, "94") && len(phone) == 11 {
		phone = phone[2:]
	}
	if strings.HasPrefix(phone, "0") && len(phone) == 10 {
		phone = phone[1:]
	}

	if len(phone) != 9 {
		return "", fmt.Errorf("invalid phone number length after formatting: %d digits (expected 9)", len(phone))
	}
	if !strings.HasPrefix(phone, "7") {
		return "", fmt.Errorf("invalid Sri Lankan mobile prefix: must start with 7")
	}
	return phone, nil
}

// LogGateway writes messages to the log instead of sending them (SMS_MODE=dev)
type LogGateway struct {
	logger *logrus.Logger
}

// NewLogGateway creates a gateway that only logs
func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

// SendMessage logs the message
func (g *LogGateway) SendMessage(ctx context.Context, phone, message string) (int64, error) {
	formatted, err := FormatPhoneForDialog(phone)
	if err != nil {
		return 0, fmt.Errorf("invalid phone number: %w", err)
	}
	transactionID := time.Now().UnixMicro()
	g.logger.WithFields(logrus.Fields{
		"phone":          formatted,
		"transaction_id": transactionID,
		"message":        message,
	}).Info("📱 [DEV] SMS not sent")
	return transactionID, nil
}

// GetName returns the name of this SMS gateway
func (g *LogGateway) GetName() string {
	return "Log Gateway"
}
