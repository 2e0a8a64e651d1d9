// Package kafka mirrors stored count records to a Kafka topic so downstream
// consumers (dashboards, alerting) can follow snapshots without polling the
// query API. Publishing is optional and feature-flagged via configuration.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/floodwatch/floodcounts/internal/config"
	"github.com/floodwatch/floodcounts/internal/domain"
)

// Publisher produces count snapshots to the configured topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the snapshot topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes one stored record and writes it to the snapshot topic.
// The message key is the record's normalized timestamp, so log-compacted
// topics keep exactly one message per 15-minute slot.
func (p *Publisher) Publish(ctx context.Context, record domain.CountRecord) error {
	msg, err := serializeToMessage(record)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a CountRecord into a Kafka message.
func serializeToMessage(record domain.CountRecord) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize count record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(record.Timestamp),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "published_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}, nil
}
