package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/smarttransit/seat-inventory/pkg/validator"
)

// TicketRenderer renders booking e-tickets as PDF documents
type TicketRenderer struct {
	location *time.Location
	phones   *validator.PhoneValidator
}

// NewTicketRenderer creates a renderer printing times in loc (UTC when nil)
func NewTicketRenderer(loc *time.Location) *TicketRenderer {
	if loc == nil {
		loc = time.UTC
	}
	return &TicketRenderer{location: loc, phones: validator.NewPhoneValidator()}
}

// Render builds the e-ticket of a booking. Only confirmed or completed
// bookings have a ticket.
func (r *TicketRenderer) Render(booking *models.Booking, trip models.Trip) ([]byte, error) {
	if booking.Status == models.BookingStatusCancelled {
		return nil, models.NewError(models.KindInvalidTransition, "booking %s is cancelled", booking.Reference)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+booking.Reference, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "SMARTTRANSIT E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		"Booking Ref  : " + booking.Reference,
		"Trip         : " + trip.ID,
		"Route        : " + dash(trip.RouteRef),
		"Departure    : " + trip.DepartureAt.In(r.location).Format("2006-01-02 15:04"),
		"Seats        : " + strings.Join(booking.SeatCodes, ", "),
		fmt.Sprintf("Amount       : %s %.2f", booking.Currency, booking.Amount),
		"Status       : " + strings.ToUpper(string(booking.Status)),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}
	pdf.Ln(5)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(20, 8, "Seat", "1", 0, "C", false, 0, "")
	pdf.CellFormat(80, 8, "Passenger", "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 8, "Age", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 8, "Mobile", "1", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, p := range booking.Passengers {
		pdf.CellFormat(20, 8, p.SeatCode, "1", 0, "C", false, 0, "")
		pdf.CellFormat(80, 8, p.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", p.Age), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 8, r.mobile(p.Mobile), "1", 1, "L", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Please show this ticket when boarding. Each passenger must occupy the seat printed next to their name.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render ticket: %w", err)
	}
	return buf.Bytes(), nil
}

// mobile prints a number as 07X XXX XXXX, or as given when it does not parse
func (r *TicketRenderer) mobile(phone string) string {
	if formatted, err := r.phones.Format(phone); err == nil {
		return formatted
	}
	return dash(phone)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
