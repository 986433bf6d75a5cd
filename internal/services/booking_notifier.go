package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/smarttransit/seat-inventory/pkg/sms"
	"github.com/smarttransit/seat-inventory/pkg/validator"
)

// BookingNotifier is told about booking transitions after they are stored.
// Failures never undo the transition; callers only log them.
type BookingNotifier interface {
	BookingConfirmed(ctx context.Context, booking *models.Booking) error
	BookingCancelled(ctx context.Context, booking *models.Booking) error
}

// EventPublisher is the part of cqrs.EventBus the notifier needs
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// EventNotifier publishes booking events to the event bus
type EventNotifier struct {
	bus EventPublisher
	now func() time.Time
}

// NewEventNotifier creates a notifier publishing to bus
func NewEventNotifier(bus EventPublisher) *EventNotifier {
	return &EventNotifier{bus: bus, now: time.Now}
}

// BookingConfirmed publishes a BookingConfirmed event
func (n *EventNotifier) BookingConfirmed(ctx context.Context, booking *models.Booking) error {
	if err := n.bus.Publish(ctx, models.NewBookingConfirmed(booking, n.now())); err != nil {
		return fmt.Errorf("failed to publish BookingConfirmed: %w", err)
	}
	return nil
}

// BookingCancelled publishes a BookingCancelled event
func (n *EventNotifier) BookingCancelled(ctx context.Context, booking *models.Booking) error {
	if err := n.bus.Publish(ctx, models.NewBookingCancelled(booking, n.now())); err != nil {
		return fmt.Errorf("failed to publish BookingCancelled: %w", err)
	}
	return nil
}

// SMSNotifier texts the booking contact
type SMSNotifier struct {
	gateway sms.SMSGateway
	phones  *validator.PhoneValidator
	logger  *logrus.Logger
}

// NewSMSNotifier creates a notifier sending through gateway
func NewSMSNotifier(gateway sms.SMSGateway, logger *logrus.Logger) *SMSNotifier {
	return &SMSNotifier{gateway: gateway, phones: validator.NewPhoneValidator(), logger: logger}
}

// BookingConfirmed texts the seats and amount of a confirmed booking
func (n *SMSNotifier) BookingConfirmed(ctx context.Context, booking *models.Booking) error {
	if booking.Contact.Mobile == "" {
		return nil
	}
	message := fmt.Sprintf("SmartTransit booking %s confirmed. Seats: %s. Amount: %s %.2f",
		booking.Reference, strings.Join(booking.SeatCodes, ", "), booking.Currency, booking.Amount)
	return n.send(ctx, booking, message)
}

// BookingCancelled texts the cancellation notice
func (n *SMSNotifier) BookingCancelled(ctx context.Context, booking *models.Booking) error {
	if booking.Contact.Mobile == "" {
		return nil
	}
	message := fmt.Sprintf("SmartTransit booking %s has been cancelled. Seats %s are released.",
		booking.Reference, strings.Join(booking.SeatCodes, ", "))
	return n.send(ctx, booking, message)
}

func (n *SMSNotifier) send(ctx context.Context, booking *models.Booking, message string) error {
	phone, err := n.phones.Validate(booking.Contact.Mobile)
	if err != nil {
		return fmt.Errorf("invalid contact mobile for %s: %w", booking.Reference, err)
	}
	operator, _ := n.phones.GetOperator(phone)

	txID, err := n.gateway.SendMessage(ctx, phone, message)
	if err != nil {
		return fmt.Errorf("failed to send SMS via %s: %w", n.gateway.GetName(), err)
	}
	n.logger.WithFields(logrus.Fields{
		"booking_ref":    booking.Reference,
		"gateway":        n.gateway.GetName(),
		"operator":       operator,
		"transaction_id": txID,
	}).Info("Booking SMS sent")
	return nil
}

// MultiNotifier fans out to several notifiers and joins their errors
type MultiNotifier []BookingNotifier

// BookingConfirmed calls every notifier, even after a failure
func (m MultiNotifier) BookingConfirmed(ctx context.Context, booking *models.Booking) error {
	var errs []error
	for _, n := range m {
		if err := n.BookingConfirmed(ctx, booking); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BookingCancelled calls every notifier, even after a failure
func (m MultiNotifier) BookingCancelled(ctx context.Context, booking *models.Booking) error {
	var errs []error
	for _, n := range m {
		if err := n.BookingCancelled(ctx, booking); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
