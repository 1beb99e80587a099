package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/events"
	"github.com/warp/schedule-engine/factory"
	"github.com/warp/schedule-engine/schedule"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func generatedRecord(t *testing.T) *schedule.Record {
	t.Helper()
	p, _ := factory.LookupPreset("plain-monthly")
	terms, err := factory.NewLoanFactory().ParseTerms(p.JSON)
	require.NoError(t, err)
	engine, err := schedule.NewEngine(schedule.StrategyCumulative, schedule.DefaultDependencies())
	require.NoError(t, err)
	model, err := engine.Generate(terms)
	require.NoError(t, err)
	return &schedule.Record{
		ID: uuid.New(), LoanRef: "L-42", Version: 3,
		Strategy: schedule.StrategyCumulative, Schedule: model,
	}
}

func TestKafkaPublisher_PublishGenerated(t *testing.T) {
	// GIVEN: A generated schedule record
	// WHEN: Publishing it
	// THEN: One message keyed by loan reference carries the event

	w := &fakeWriter{}
	p := events.NewKafkaPublisherWithWriter(w)
	rec := generatedRecord(t)

	require.NoError(t, p.PublishGenerated(context.Background(), rec))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "L-42", string(msg.Key))
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, events.EventScheduleGenerated, string(msg.Headers[0].Value))

	var event events.GeneratedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, rec.ID, event.ScheduleID)
	assert.Equal(t, 3, event.Version)
	assert.Equal(t, "2025-05-15", event.Maturity)
	assert.Equal(t, "1000.00", event.Totals.Principal)
	require.NotNil(t, event.Schedule)
	assert.Equal(t, rec.Schedule.Len(), event.Schedule.Len())
	assert.Equal(t, rec.Schedule.Totals().Interest.String(), event.Schedule.Totals().Interest.String())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := events.NewKafkaPublisherWithWriter(w)

	err := p.PublishGenerated(context.Background(), generatedRecord(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "L-42")
}

func TestNewGeneratedEvent_NoSchedule(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	e := events.NewGeneratedEvent(&schedule.Record{LoanRef: "L-1"}, at)

	assert.Equal(t, time.UTC, e.OccurredAt.Location())
	assert.Empty(t, e.Maturity)
	assert.NotEqual(t, uuid.Nil, e.EventID)
}
