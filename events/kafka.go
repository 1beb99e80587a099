/*
Package events publishes schedule lifecycle events to Kafka.

PURPOSE:
  Downstream systems (collections, statements, the general ledger) react
  to new schedule versions without polling the store. Every persisted
  schedule produces one "schedule.generated" message keyed by loan
  reference, so all versions of a loan land on the same partition in order.

MESSAGE:
  key:     loan reference
  headers: event-type, event-id, content-type
  value:   GeneratedEvent as JSON

SEE ALSO:
  - schedule/store.go: Publisher interface
  - schedule/service.go: Publishes after Save
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/warp/schedule-engine/schedule"
)

const EventScheduleGenerated = "schedule.generated"

// GeneratedEvent is the payload of a schedule.generated message.
type GeneratedEvent struct {
	EventID    uuid.UUID         `json:"event_id"`
	EventType  string            `json:"event_type"`
	OccurredAt time.Time         `json:"occurred_at"`
	ScheduleID uuid.UUID         `json:"schedule_id"`
	LoanRef    string            `json:"loan_ref"`
	Version    int               `json:"version"`
	Strategy   schedule.Strategy `json:"strategy"`
	OfficeID   string            `json:"office_id,omitempty"`
	Maturity   string            `json:"maturity_date"`
	Totals     TotalsPayload     `json:"totals"`
	Schedule   *schedule.Model   `json:"schedule"`
}

type TotalsPayload struct {
	Disbursed   string `json:"disbursed"`
	Principal   string `json:"principal"`
	Interest    string `json:"interest"`
	Fees        string `json:"fees"`
	Penalties   string `json:"penalties"`
	Expected    string `json:"expected"`
	Unscheduled string `json:"unscheduled"`
}

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config holds Kafka connection parameters.
type Config struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher implements schedule.Publisher.
type KafkaPublisher struct {
	writer Writer
	now    func() time.Time
}

var _ schedule.Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to cfg.Topic.
func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	})
}

func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// PublishGenerated sends one schedule.generated message for rec.
func (p *KafkaPublisher) PublishGenerated(ctx context.Context, rec *schedule.Record) error {
	event := NewGeneratedEvent(rec, p.now())
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", EventScheduleGenerated, err)
	}

	msg := kafkago.Message{
		Key:   []byte(rec.LoanRef),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event-type", Value: []byte(EventScheduleGenerated)},
			{Key: "event-id", Value: []byte(event.EventID.String())},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", rec.LoanRef, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NewGeneratedEvent builds the payload for a stored record.
func NewGeneratedEvent(rec *schedule.Record, at time.Time) GeneratedEvent {
	e := GeneratedEvent{
		EventID:    uuid.New(),
		EventType:  EventScheduleGenerated,
		OccurredAt: at.UTC(),
		ScheduleID: rec.ID,
		LoanRef:    rec.LoanRef,
		Version:    rec.Version,
		Strategy:   rec.Strategy,
		OfficeID:   rec.OfficeID,
		Schedule:   rec.Schedule,
	}
	if rec.Schedule != nil {
		t := rec.Schedule.Totals()
		e.Maturity = rec.Schedule.MaturityDate().String()
		e.Totals = TotalsPayload{
			Disbursed:   t.Disbursed.String(),
			Principal:   t.Principal.String(),
			Interest:    t.Interest.String(),
			Fees:        t.Fees.String(),
			Penalties:   t.Penalties.String(),
			Expected:    t.Expected.String(),
			Unscheduled: t.Unscheduled.String(),
		}
	}
	return e
}
