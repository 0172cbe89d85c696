package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation/internal/model"
)

func sampleEvent() model.BookingEvent {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	return model.BookingEvent{
		Type:       model.EventBookingTimedOut,
		BookingID:  42,
		MemberID:   7,
		SeatID:     3,
		State:      model.StateCanceled,
		StartTime:  start,
		EndTime:    start.Add(2 * time.Hour),
		OccurredAt: start.Add(16 * time.Minute),
	}
}

func TestBookingEventMessageRoundTrip(t *testing.T) {
	msg := NewBookingEventMessage(sampleEvent())
	require.NotEmpty(t, msg.MessageID)

	body, err := msg.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"message_id":"`+msg.MessageID+`"`)
	assert.Contains(t, string(body), `"booking_id":42`)

	got, err := DecodeBookingEventMessage(body)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestMessageIDsAreUnique(t *testing.T) {
	a := NewBookingEventMessage(sampleEvent())
	b := NewBookingEventMessage(sampleEvent())
	assert.NotEqual(t, a.MessageID, b.MessageID)
}

func TestDecodeRejectsIncompletePayloads(t *testing.T) {
	for name, body := range map[string]string{
		"not json":   `{`,
		"no type":    `{"booking_id": 1}`,
		"no booking": `{"type": "booking.created"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBookingEventMessage([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestAppendEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "booking.log")
	body, err := NewBookingEventMessage(sampleEvent()).Encode()
	require.NoError(t, err)

	require.NoError(t, AppendEventLog(path, body))
	require.NoError(t, AppendEventLog(path, body))
	assert.Error(t, AppendEventLog(path, []byte(`garbage`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[2025-06-02T09:16:00Z] booking.timed_out | booking_id=42 | member_id=7 | seat_id=3 | state=CANCELED"))
}
