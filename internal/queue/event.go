// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-reservation/internal/model"
)

// BookingEventsQueue carries every booking lifecycle event.
const BookingEventsQueue = "booking.events"

// BookingEventMessage is the wire form of a lifecycle event. MessageID is
// unique per publish so consumers can drop redeliveries.
type BookingEventMessage struct {
	MessageID string `json:"message_id"`
	model.BookingEvent
}

// NewBookingEventMessage wraps ev with a fresh message id.
func NewBookingEventMessage(ev model.BookingEvent) BookingEventMessage {
	return BookingEventMessage{MessageID: uuid.NewString(), BookingEvent: ev}
}

// Encode marshals the message as JSON.
func (m BookingEventMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeBookingEventMessage parses a message body and rejects payloads
// missing the fields consumers rely on.
func DecodeBookingEventMessage(body []byte) (BookingEventMessage, error) {
	var m BookingEventMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return BookingEventMessage{}, fmt.Errorf("unmarshal: %w", err)
	}
	if m.Type == "" || m.BookingID == 0 {
		return BookingEventMessage{}, fmt.Errorf("incomplete event %q for booking %d", m.Type, m.BookingID)
	}
	return m, nil
}

// LogLine renders the single-line entry the event log consumer appends.
func (m BookingEventMessage) LogLine() string {
	return fmt.Sprintf("[%s] %s | booking_id=%d | member_id=%d | seat_id=%d | state=%s | start=%s | end=%s | message_id=%s\n",
		m.OccurredAt.UTC().Format(time.RFC3339), m.Type, m.BookingID, m.MemberID, m.SeatID, m.State,
		m.StartTime.UTC().Format(time.RFC3339), m.EndTime.UTC().Format(time.RFC3339), m.MessageID)
}
