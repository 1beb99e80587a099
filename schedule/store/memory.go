// Package store provides in-memory schedule.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*schedule.Record
	byLoan  map[string][]uuid.UUID
}

var _ schedule.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		records: make(map[uuid.UUID]*schedule.Record),
		byLoan:  make(map[string][]uuid.UUID),
	}
}

// Save appends a record. Append-only.
func (m *Memory) Save(_ context.Context, rec *schedule.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("%w: %s", generic.ErrScheduleExists, rec.ID)
	}
	cp := *rec
	m.records[rec.ID] = &cp
	m.byLoan[rec.LoanRef] = append(m.byLoan[rec.LoanRef], rec.ID)
	return nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*schedule.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, generic.ErrScheduleNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) Latest(_ context.Context, loanRef string) (*schedule.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec := m.latestLocked(loanRef)
	if rec == nil {
		return nil, generic.ErrScheduleNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) History(_ context.Context, loanRef string) ([]*schedule.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*schedule.Record
	for _, id := range m.byLoan[loanRef] {
		cp := *m.records[id]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Memory) MarkStale(_ context.Context, officeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for loanRef := range m.byLoan {
		rec := m.latestLocked(loanRef)
		if rec == nil || rec.Stale {
			continue
		}
		if officeID != "" && rec.OfficeID != officeID {
			continue
		}
		rec.Stale = true
		n++
	}
	return n, nil
}

func (m *Memory) ListStale(_ context.Context, limit int) ([]*schedule.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*schedule.Record
	for loanRef := range m.byLoan {
		rec := m.latestLocked(loanRef)
		if rec != nil && rec.Stale {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) latestLocked(loanRef string) *schedule.Record {
	var latest *schedule.Record
	for _, id := range m.byLoan[loanRef] {
		rec := m.records[id]
		if latest == nil || rec.Version > latest.Version {
			latest = rec
		}
	}
	return latest
}

// =============================================================================
// HOLIDAYS - In-memory holiday calendar with admin operations
// =============================================================================

// Holidays is a mutable generic.HolidayCalendar for the memory driver.
type Holidays struct {
	mu   sync.RWMutex
	byID map[string]generic.Holiday
}

var _ generic.HolidayCalendar = (*Holidays)(nil)

func NewHolidays() *Holidays {
	return &Holidays{byID: make(map[string]generic.Holiday)}
}

func (h *Holidays) SaveHoliday(_ context.Context, hol generic.Holiday) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byID[hol.ID] = hol
	return nil
}

func (h *Holidays) DeleteHoliday(_ context.Context, id string) (*generic.Holiday, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hol, ok := h.byID[id]
	if !ok {
		return nil, generic.ErrHolidayNotFound
	}
	delete(h.byID, id)
	return &hol, nil
}

func (h *Holidays) ListHolidays(_ context.Context, officeID string) ([]generic.Holiday, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []generic.Holiday
	for _, hol := range h.byID {
		if hol.OfficeID == "" || hol.OfficeID == officeID {
			out = append(out, hol)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (h *Holidays) IsHoliday(officeID string, date generic.TimePoint) bool {
	return h.snapshot().IsHoliday(officeID, date)
}

func (h *Holidays) GetHolidays(officeID string, year int) []generic.Holiday {
	return h.snapshot().GetHolidays(officeID, year)
}

func (h *Holidays) snapshot() *generic.StaticHolidayCalendar {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cal := &generic.StaticHolidayCalendar{}
	for _, hol := range h.byID {
		cal.Holidays = append(cal.Holidays, hol)
	}
	return cal
}
