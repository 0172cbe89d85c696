package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultEventLogPath is where StartEventLogConsumer appends entries.
var DefaultEventLogPath = filepath.Join("logs", "booking.log")

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// StartEventLogConsumer connects to RabbitMQ, consumes booking.events and
// appends one line per event to path. It reconnects with exponential
// backoff and returns only when ctx is cancelled. Malformed messages are
// rejected without requeue so a bad payload cannot spin the loop.
func StartEventLogConsumer(ctx context.Context, url, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = DefaultEventLogPath
	}
	backoff := initialBackoff
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("event consumer: dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		err = consumeLoop(ctx, conn, path, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("event consumer: consume loop ended; reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, path string, logger *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("event consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(BookingEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BookingEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := AppendEventLog(path, d.Body); err != nil {
				logger.Warn("event consumer: handle message failed", "err", err, "message_id", d.MessageId)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// AppendEventLog decodes body and appends its log line to path, creating
// the parent directory when needed.
func AppendEventLog(path string, body []byte) error {
	msg, err := DecodeBookingEventMessage(body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(msg.LogLine()); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
