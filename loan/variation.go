package loan

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// TERM VARIATIONS - Mid-term changes, each consumed once
// =============================================================================

type VariationKind string

const (
	VariationDueDateShift      VariationKind = "due_date_shift"
	VariationRateChange        VariationKind = "rate_change"
	VariationInstallmentAmount VariationKind = "installment_amount"
)

// TermVariation changes the loan from EffectiveFrom onwards.
//
//   - due_date_shift: the installment originally due on EffectiveFrom moves
//     to DateValue. Unless SpecificToInstallment, later installments follow
//     the new date.
//   - rate_change: the annual rate becomes DecimalValue from EffectiveFrom.
//   - installment_amount: the installment due on EffectiveFrom is fixed at
//     DecimalValue; non-specific variations keep the amount for later
//     installments too.
type TermVariation struct {
	Kind                  VariationKind
	EffectiveFrom         generic.TimePoint
	DateValue             generic.TimePoint
	DecimalValue          decimal.Decimal
	SpecificToInstallment bool

	consumed bool
}

func (v *TermVariation) Consumed() bool { return v.consumed }
func (v *TermVariation) MarkConsumed()  { v.consumed = true }

// TermVariations is the ordered set of variations of a loan.
type TermVariations struct {
	items []*TermVariation
}

func NewTermVariations(vs ...TermVariation) *TermVariations {
	set := &TermVariations{}
	for _, v := range vs {
		set.items = append(set.items, &v)
	}
	sort.SliceStable(set.items, func(i, j int) bool {
		return set.items[i].EffectiveFrom.Before(set.items[j].EffectiveFrom)
	})
	return set
}

func (s *TermVariations) Clone() *TermVariations {
	if s == nil {
		return NewTermVariations()
	}
	c := &TermVariations{items: make([]*TermVariation, len(s.items))}
	for i, v := range s.items {
		cp := *v
		c.items[i] = &cp
	}
	return c
}

// All returns a copy of every variation, consumed or not.
func (s *TermVariations) All() []TermVariation {
	if s == nil {
		return nil
	}
	out := make([]TermVariation, len(s.items))
	for i, v := range s.items {
		out[i] = *v
	}
	return out
}

// HasDueDateVariation reports whether an unconsumed shift applies to the
// installment originally due on date.
func (s *TermVariations) HasDueDateVariation(date generic.TimePoint) bool {
	return s.DueDateVariationFor(date) != nil
}

// DueDateVariationFor returns the unconsumed shift for date without
// consuming it.
func (s *TermVariations) DueDateVariationFor(date generic.TimePoint) *TermVariation {
	if s == nil {
		return nil
	}
	for _, v := range s.items {
		if v.Kind == VariationDueDateShift && !v.consumed && v.EffectiveFrom.Equal(date) {
			return v
		}
	}
	return nil
}

// NextDueDateVariation consumes and returns the earliest unconsumed shift.
func (s *TermVariations) NextDueDateVariation() *TermVariation {
	if s == nil {
		return nil
	}
	for _, v := range s.items {
		if v.Kind == VariationDueDateShift && !v.consumed {
			v.consumed = true
			return v
		}
	}
	return nil
}

// InterestRateChangesFrom consumes and returns the rate changes that take
// effect on or before the due date of the installment being built.
func (s *TermVariations) InterestRateChangesFrom(dueDate generic.TimePoint) []*TermVariation {
	if s == nil {
		return nil
	}
	var out []*TermVariation
	for _, v := range s.items {
		if v.Kind == VariationRateChange && !v.consumed && v.EffectiveFrom.BeforeOrEqual(dueDate) {
			v.consumed = true
			out = append(out, v)
		}
	}
	return out
}

// InstallmentAmountFor consumes and returns the amount override for the
// installment due on dueDate.
func (s *TermVariations) InstallmentAmountFor(dueDate generic.TimePoint) *TermVariation {
	if s == nil {
		return nil
	}
	for _, v := range s.items {
		if v.Kind == VariationInstallmentAmount && !v.consumed && v.EffectiveFrom.BeforeOrEqual(dueDate) {
			v.consumed = true
			return v
		}
	}
	return nil
}
