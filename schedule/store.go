/*
store.go - Persistence, event and metrics contracts of generated schedules

PURPOSE:
  Defines the interfaces between schedule generation and the outside
  world. A Record is one generated schedule version of a loan together
  with the configuration it was derived from, so it can be re-derived.

APPEND-ONLY CONTRACT:
  Schedules are never edited. Re-deriving a loan writes a new Record with
  the next Version. The only flag ever written on an existing record is
  Stale, set when a calendar change invalidates its due dates.

KEY INTERFACES:
  Store:     Record persistence (save, get, history, stale tracking)
  Publisher: Announces generated schedules to other services
  Recorder:  Generation metrics

IMPLEMENTATIONS:
  - schedule/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/store.go: PostgreSQL
  - events/kafka.go: Kafka publisher
  - observability/metrics.go: Prometheus recorder

SEE ALSO:
  - service.go: Uses all three
*/
package schedule

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// RECORD
// =============================================================================

type Record struct {
	ID        uuid.UUID
	LoanRef   string
	Version   int
	Strategy  Strategy
	OfficeID  string
	Config    json.RawMessage // loan configuration the schedule was derived from
	Schedule  *Model
	Stale     bool
	CreatedAt time.Time
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Save appends a record. The record ID must be new.
	Save(ctx context.Context, rec *Record) error

	// Get returns a record by ID or ErrScheduleNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// Latest returns the highest version of a loan or ErrScheduleNotFound.
	Latest(ctx context.Context, loanRef string) (*Record, error)

	// History returns every version of a loan, oldest first.
	History(ctx context.Context, loanRef string) ([]*Record, error)

	// MarkStale flags the latest record of every loan of an office. An
	// empty officeID flags every loan. Returns how many were flagged.
	MarkStale(ctx context.Context, officeID string) (int, error)

	// ListStale returns up to limit latest records flagged stale.
	ListStale(ctx context.Context, limit int) ([]*Record, error)
}

// =============================================================================
// PUBLISHER & RECORDER
// =============================================================================

type Publisher interface {
	PublishGenerated(ctx context.Context, rec *Record) error
}

// NopPublisher drops events when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishGenerated(context.Context, *Record) error { return nil }

type Recorder interface {
	ObserveGeneration(strategy Strategy, periods int, elapsed time.Duration)
	ObserveFailure(strategy Strategy, reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveGeneration(Strategy, int, time.Duration) {}
func (nopRecorder) ObserveFailure(Strategy, string)               {}
