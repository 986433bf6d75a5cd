package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/events"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/smarttransit/seat-inventory/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testBooking() *models.Booking {
	id := uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000001")
	return &models.Booking{
		ID:        id,
		Reference: "BK-261016-3F2A9C1E",
		TripID:    "trip-1",
		HoldID:    uuid.New(),
		SeatCodes: models.StringArray{"L1", "L2"},
		Contact:   models.ContactPerson{Name: "Nimal", Mobile: "0771234567"},
		Amount:    3000,
		Currency:  "LKR",
		Status:    models.BookingStatusConfirmed,
	}
}

func TestEventNotifier_PublishesToTopic(t *testing.T) {
	wlogger := events.NewLogrusAdapter(quietLogger())
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, wlogger)
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	confirmed, err := pubSub.Subscribe(ctx, "inventory.BookingConfirmed")
	require.NoError(t, err)
	cancelled, err := pubSub.Subscribe(ctx, "inventory.BookingCancelled")
	require.NoError(t, err)

	bus, err := events.NewEventBus(pubSub, "inventory.", wlogger)
	require.NoError(t, err)
	notifier := NewEventNotifier(bus)

	booking := testBooking()
	require.NoError(t, notifier.BookingConfirmed(ctx, booking))
	require.NoError(t, notifier.BookingCancelled(ctx, booking))

	select {
	case msg := <-confirmed:
		msg.Ack()
		var event models.BookingConfirmed
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, booking.Reference, event.BookingReference)
		assert.Equal(t, []string{"L1", "L2"}, event.SeatCodes)
		assert.Equal(t, "0771234567", event.ContactMobile)
		assert.Equal(t, "booking-confirmed-"+booking.ID.String(), event.Header.IdempotencyKey)
	case <-ctx.Done():
		t.Fatal("BookingConfirmed was not published")
	}

	select {
	case msg := <-cancelled:
		msg.Ack()
		var event models.BookingCancelled
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, booking.ID.String(), event.BookingID)
	case <-ctx.Done():
		t.Fatal("BookingCancelled was not published")
	}
}

type mockSMSGateway struct {
	mock.Mock
}

func (m *mockSMSGateway) SendMessage(ctx context.Context, phone, message string) (int64, error) {
	args := m.Called(ctx, phone, message)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSMSGateway) GetName() string {
	return "mock"
}

func TestSMSNotifier(t *testing.T) {
	gateway := new(mockSMSGateway)
	notifier := NewSMSNotifier(gateway, quietLogger())
	booking := testBooking()

	gateway.On("SendMessage", mock.Anything, "0771234567", mock.MatchedBy(func(msg string) bool {
		return assert.ObjectsAreEqual("SmartTransit booking BK-261016-3F2A9C1E confirmed. Seats: L1, L2. Amount: LKR 3000.00", msg)
	})).Return(int64(42), nil).Once()

	require.NoError(t, notifier.BookingConfirmed(context.Background(), booking))
	gateway.AssertExpectations(t)

	t.Run("no contact mobile skips the send", func(t *testing.T) {
		b := testBooking()
		b.Contact.Mobile = ""
		assert.NoError(t, notifier.BookingCancelled(context.Background(), b))
		gateway.AssertNumberOfCalls(t, "SendMessage", 1)
	})

	t.Run("recipient is sent as digits only", func(t *testing.T) {
		b := testBooking()
		b.Contact.Mobile = "+94 79 123 4567"
		gateway.On("SendMessage", mock.Anything, "0791234567", mock.Anything).Return(int64(43), nil).Once()
		assert.NoError(t, notifier.BookingCancelled(context.Background(), b))
		gateway.AssertNumberOfCalls(t, "SendMessage", 2)
	})

	t.Run("unparseable mobile is not sent", func(t *testing.T) {
		b := testBooking()
		b.Contact.Mobile = "0631234567"
		err := notifier.BookingConfirmed(context.Background(), b)
		assert.ErrorIs(t, err, validator.ErrInvalidPrefix)
		gateway.AssertNumberOfCalls(t, "SendMessage", 2)
	})

	t.Run("gateway failure is returned", func(t *testing.T) {
		gateway.On("SendMessage", mock.Anything, "0771234567", mock.Anything).Return(int64(0), errors.New("down")).Once()
		err := notifier.BookingCancelled(context.Background(), booking)
		assert.ErrorContains(t, err, "down")
	})
}

type stubNotifier struct {
	err       error
	confirmed int
	cancelled int
}

func (s *stubNotifier) BookingConfirmed(ctx context.Context, b *models.Booking) error {
	s.confirmed++
	return s.err
}

func (s *stubNotifier) BookingCancelled(ctx context.Context, b *models.Booking) error {
	s.cancelled++
	return s.err
}

func TestMultiNotifier_CallsAllAndJoinsErrors(t *testing.T) {
	failing := &stubNotifier{err: errors.New("boom")}
	ok := &stubNotifier{}
	multi := MultiNotifier{failing, ok}

	err := multi.BookingConfirmed(context.Background(), testBooking())
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, failing.confirmed)
	assert.Equal(t, 1, ok.confirmed)

	assert.NoError(t, MultiNotifier{ok}.BookingCancelled(context.Background(), testBooking()))
	assert.Equal(t, 1, ok.cancelled)
}
