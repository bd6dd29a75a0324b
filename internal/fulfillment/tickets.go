package fulfillment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TicketNumber derives the number of the index-th (1-based) ticket of a purchase.
func TicketNumber(reference string, index int) string {
	return fmt.Sprintf("TKT-%s-%03d", strings.TrimPrefix(reference, "EV_"), index)
}

// TicketNumbers derives every ticket number for a purchase of qty units.
func TicketNumbers(reference string, qty int) []string {
	numbers := make([]string, 0, qty)
	for i := 1; i <= qty; i++ {
		numbers = append(numbers, TicketNumber(reference, i))
	}
	return numbers
}

type qrPayload struct {
	EventID       uuid.UUID `json:"eventId"`
	TicketNumber  string    `json:"ticketNumber"`
	PurchaseID    uuid.UUID `json:"purchaseId"`
	CustomerEmail string    `json:"customerEmail"`
}

// QRData is the JSON document encoded in a ticket's QR code.
func QRData(eventID, purchaseID uuid.UUID, ticketNumber, email string) (string, error) {
	raw, err := json.Marshal(qrPayload{
		EventID:       eventID,
		TicketNumber:  ticketNumber,
		PurchaseID:    purchaseID,
		CustomerEmail: email,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
