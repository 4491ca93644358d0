// Package queue moves viewpoint-processing requests from the API process to
// the worker over Kafka. Delivery is at-least-once: a message stays on the
// queue until the consumer commits it, so consumers must tolerate
// redelivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"tileview/internal/models"
)

const correlationHeader = "correlation_id"

// Message is one dequeued viewpoint request: a record snapshot taken at
// enqueue time plus transport metadata needed for the later Ack.
type Message struct {
	Record        models.ViewpointRecord
	CorrelationID string

	raw kafka.Message
}

type RequestQueue struct {
	writer *kafka.Writer
	reader *kafka.Reader
	log    zerolog.Logger
}

func New(broker, topic, group string, log zerolog.Logger) *RequestQueue {
	return &RequestQueue{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			AllowAutoTopicCreation: true,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{broker},
			Topic:   topic,
			GroupID: group,
		}),
		log: log,
	}
}

// Enqueue serializes the record snapshot as the message body; the
// correlation id travels as a header, not in the body.
func (q *RequestQueue) Enqueue(ctx context.Context, rec *models.ViewpointRecord, correlationID string) error {
	const op = "queue.Enqueue"

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.ID),
		Value: body,
	}
	if correlationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: correlationHeader, Value: []byte(correlationID)})
	}
	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Dequeue long-polls for up to wait and returns zero or one messages. An
// empty poll is not an error.
func (q *RequestQueue) Dequeue(ctx context.Context, wait time.Duration) ([]Message, error) {
	const op = "queue.Dequeue"

	pollCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	raw, err := q.reader.FetchMessage(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
			return nil, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	msg := Message{raw: raw}
	if err := json.Unmarshal(raw.Value, &msg.Record); err != nil {
		// A poison message can never be processed; drop it so it does not
		// wedge the partition.
		q.log.Error().Err(err).Msg("dropping undecodable viewpoint request message")
		if commitErr := q.reader.CommitMessages(ctx, raw); commitErr != nil {
			return nil, fmt.Errorf("%s: %w", op, commitErr)
		}
		return nil, nil
	}
	for _, h := range raw.Headers {
		if h.Key == correlationHeader {
			msg.CorrelationID = string(h.Value)
		}
	}
	return []Message{msg}, nil
}

// Ack acknowledges successful processing. Callers must persist the status
// update before acking: a crash in between results in redelivery, which the
// worker detects by re-validating the record status.
func (q *RequestQueue) Ack(ctx context.Context, msg Message) error {
	const op = "queue.Ack"

	if err := q.reader.CommitMessages(ctx, msg.raw); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (q *RequestQueue) Close() error {
	werr := q.writer.Close()
	rerr := q.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
