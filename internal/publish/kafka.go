// Package publish forwards finished simulation reports to Kafka.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Agrid-Dev/thermocarlo/internal/ports"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
)

const contentTypeJSON = "application/json"

var (
	ErrNoBrokers = errors.New("kafka: at least one broker is required")
	ErrNoTopic   = errors.New("kafka: topic must not be empty")
)

type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one JSON message per report, keyed by instance id so
// that the reports of an instance stay ordered within a partition.
type KafkaPublisher struct {
	w       messageWriter
	topic   string
	timeout time.Duration
	log     *slog.Logger
}

func NewKafka(cfg Config, log *slog.Logger) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, ErrNoTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newWithWriter(w, cfg, log), nil
}

func newWithWriter(w messageWriter, cfg Config, log *slog.Logger) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{
		w:       w,
		topic:   cfg.Topic,
		timeout: timeout,
		log:     log.With("component", "kafka_publisher", "topic", cfg.Topic),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, instanceID string, r simulation.Report) error {
	dto := ports.ToReportDTO(r)
	dto.InstanceID = instanceID
	value, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(instanceID),
		Value: value,
		Time:  r.StartedAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(contentTypeJSON)},
			{Key: "report-id", Value: []byte(r.ID)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish report %s: %w", r.ID, err)
	}
	p.log.Debug("report published", "id", r.ID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
