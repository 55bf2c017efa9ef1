package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fire-danger-etl/internal/config"
	"github.com/couchcryptid/fire-danger-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes predicted station-days to a Kafka topic, one message per
// row. It implements pipeline.PredictionSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured prediction topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

func (w *Writer) Name() string { return "kafka" }

// WritePredictions serializes and publishes all rows in a single
// WriteMessages call. Rows are keyed by station and date so every day of a
// station lands on the same partition in order.
func (w *Writer) WritePredictions(ctx context.Context, rows []domain.DailyObservation) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish predictions to %s: %w", w.writer.Topic, err)
	}
	w.logger.Info("predictions published", "topic", w.writer.Topic, "rows", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a predicted row into a Kafka message.
func serializeToMessage(row domain.DailyObservation) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(row)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "station", Value: []byte(row.Station)},
			{Key: "ffdi_rate", Value: []byte(row.Rating)},
		},
	}, nil
}

// MessageKey identifies a station-day, e.g. "86282|2020-08-18".
func MessageKey(row domain.DailyObservation) string {
	return row.Station + "|" + row.Date().String()
}
