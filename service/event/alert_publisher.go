/*
 * @module service/event/alert_publisher
 * @description Publishes alert lifecycle events (created / resolved) to downstream consumers
 * @architecture Event-driven architecture - outbound events
 * @stateFlow alert scan commits -> events built -> published to Kafka (keyed by subject id)
 * @rules publishing happens after the scan transaction commits; failures are reported to the caller, never rolled back
 * @dependencies github.com/segmentio/kafka-go
 * @refs service/alerting/generator.go, service/init.go
 */

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Alert event actions
const (
	AlertActionCreated  = "created"
	AlertActionResolved = "resolved"
)

// AlertEvent one alert state change
type AlertEvent struct {
	Action           string    `json:"action"`
	AlertID          string    `json:"alertId"`
	Kind             string    `json:"kind"`
	SubjectType      string    `json:"subjectType"`
	SubjectID        string    `json:"subjectId"`
	TriggerCondition string    `json:"triggerCondition"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// AlertPublisher sink of alert events
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, events []AlertEvent) error
}

// NopPublisher drops every event
type NopPublisher struct{}

// PublishAlerts does nothing
func (NopPublisher) PublishAlerts(ctx context.Context, events []AlertEvent) error {
	return nil
}

// KafkaConfig producer settings
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAlertPublisher publishes alert events as JSON messages
type KafkaAlertPublisher struct {
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
}

// NewKafkaAlertPublisher creates a publisher writing to config.Topic
func NewKafkaAlertPublisher(config KafkaConfig) *KafkaAlertPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
	}
	if config.BatchTimeout > 0 {
		writer.BatchTimeout = config.BatchTimeout
	}

	slog.Info("kafka alert publisher initialized",
		"brokers", config.Brokers,
		"topic", config.Topic)
	return newKafkaAlertPublisher(writer, config.Topic, config.WriteTimeout)
}

func newKafkaAlertPublisher(writer messageWriter, topic string, writeTimeout time.Duration) *KafkaAlertPublisher {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &KafkaAlertPublisher{writer: writer, topic: topic, writeTimeout: writeTimeout}
}

// PublishAlerts writes all events in one batch; the message key is the subject id
// so events of one task stay ordered within a partition
func (k *KafkaAlertPublisher) PublishAlerts(ctx context.Context, events []AlertEvent) error {
	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode alert event: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(e.SubjectID),
			Value: value,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte("alert." + e.Action)},
				{Key: "alert-kind", Value: []byte(e.Kind)},
			},
		})
	}

	writeCtx, cancel := context.WithTimeout(ctx, k.writeTimeout)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, messages...); err != nil {
		return fmt.Errorf("publish %d alert events to %s: %w", len(events), k.topic, err)
	}
	slog.Debug("alert events published", "topic", k.topic, "count", len(events))
	return nil
}

// Close flushes and closes the writer
func (k *KafkaAlertPublisher) Close() error {
	return k.writer.Close()
}

// MemoryPublisher keeps events in memory; used by tests and local runs
type MemoryPublisher struct {
	mu     sync.Mutex
	events []AlertEvent
	err    error
}

// PublishAlerts appends events, or returns the configured error
func (m *MemoryPublisher) PublishAlerts(ctx context.Context, events []AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, events...)
	return nil
}

// FailWith makes subsequent publishes fail
func (m *MemoryPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Events published so far
func (m *MemoryPublisher) Events() []AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AlertEvent(nil), m.events...)
}
