// Package events publishes memory lifecycle events (ADD, UPDATE,
// DELETE, NONE) for downstream consumers: audit trails, analytics, or a
// future background consolidation pass. Publication is best-effort and
// never blocks or fails the ingest pipeline that produced the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/oceanbase/powermem/pkg/storage"
)

// MemoryEvent describes one applied (or skipped) memory action.
type MemoryEvent struct {
	// ID is the memory the action touched. Zero for NONE events that
	// never materialized a record.
	ID storage.MemoryID `json:"id,omitempty"`

	// Event is one of "ADD", "UPDATE", "DELETE", "NONE".
	Event string `json:"event"`

	// Content is the memory text after the action.
	Content string `json:"content,omitempty"`

	// PreviousMemory is the pre-action text for UPDATE and DELETE.
	PreviousMemory string `json:"previous_memory,omitempty"`

	// UserID / AgentID / RunID carry the scope the action ran under.
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`

	// Timestamp is when the action was applied.
	Timestamp time.Time `json:"timestamp"`
}

// Emitter publishes memory events. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Emit(ctx context.Context, event MemoryEvent) error
	Close() error
}

// KafkaEmitter publishes memory events to a Kafka topic, keyed by
// memory ID so per-memory ordering survives partitioning.
type KafkaEmitter struct {
	writer *kafka.Writer
}

// NewKafkaEmitter creates an emitter writing to the given brokers and topic.
func NewKafkaEmitter(brokers []string, topic string) *KafkaEmitter {
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

var _ Emitter = (*KafkaEmitter)(nil)

// Emit publishes one event. With the async writer this enqueues and
// returns; delivery failures are dropped, which is acceptable for an
// observability stream.
func (e *KafkaEmitter) Emit(ctx context.Context, event MemoryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ID.String()),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}
