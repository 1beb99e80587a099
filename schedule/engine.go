/*
Package schedule generates loan repayment schedules.

PURPOSE:
  Given loan terms, an Engine produces an immutable Model: the ordered list
  of disbursement, down-payment and repayment rows plus derived totals.
  Two strategies share the same contract and the same building blocks.

STRATEGIES:
  - cumulative (RestBased): walks period by period. Interest is charged on
    a lagged outstanding-balance-for-rest and the installment is recomputed
    whenever a tranche, a rate change or an installment override is met.
  - progressive (Progressive): lays out every period first, builds one
    interest model and overlays disbursements and down payments onto it.

THE PERIOD LOOP (both strategies):
  1. Compute the loan end date (a due-date shift on it moves it)
  2. Materialize the tranches dated on the start as one disbursement row
  3. For every period:
     a. next due date, moved off non-working days, then by due-date shifts
     b. splice tranches dated in [period start, due date)
     c. split the installment into principal and interest
     d. clamp principal to the outstanding balance
     e. fees and penalties due in the window
     f. a period without principal merges into the last repayment
     g. queue the principal reduction until its rest date
  4. Keep closing periods while a balance or a tranche dated on or before
     the loan end date remains
  5. Emit tranches dated after the last installment (multi-disbursement)
  6. Apply charges that need the final interest total
  7. Freeze the rows into a Model

KEY CONCEPTS:
  - Accumulator: running balances and counters of one run
  - DisbursementProcessor: splices tranches, enforces the outstanding cap
  - ChargeEngine: fee and penalty attribution per window
  - Assembler: collects rows, merges zero-principal periods

The engine never logs and never retries. Failures are returned as errors
from generic/errors.go.

SEE ALSO:
  - cumulative.go, progressive.go: The two strategies
  - service.go: Generation plus persistence, metrics and events
  - calendar/, interest/: Collaborators
*/
package schedule

import (
	"fmt"
	"strings"

	"github.com/warp/schedule-engine/calendar"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/interest"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// ENGINE CONTRACT
// =============================================================================

type Strategy string

const (
	StrategyCumulative  Strategy = "cumulative"
	StrategyProgressive Strategy = "progressive"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyCumulative, "":
		return StrategyCumulative, nil
	case StrategyProgressive:
		return StrategyProgressive, nil
	}
	return "", &generic.UnsupportedStrategyError{Strategy: s}
}

// Engine generates schedules. Generate mutates terms as documented on
// loan.Terms; pass a clone for repeatable runs.
type Engine interface {
	Strategy() Strategy
	Generate(terms *loan.Terms) (*Model, error)
	CalculatePrepayment(terms *loan.Terms, onDate generic.TimePoint) (*OutstandingAmounts, error)
}

// Dependencies are the collaborators every strategy needs.
type Dependencies struct {
	Dates    calendar.DateGenerator
	Interest interest.Allocator
}

// DefaultDependencies uses the weekend-only calendar and the EMI allocator.
func DefaultDependencies() Dependencies {
	return Dependencies{
		Dates:    calendar.NewGenerator(nil, calendar.SameDay),
		Interest: interest.NewEMICalculator(),
	}
}

func NewEngine(strategy Strategy, deps Dependencies) (Engine, error) {
	if deps.Dates == nil || deps.Interest == nil {
		def := DefaultDependencies()
		if deps.Dates == nil {
			deps.Dates = def.Dates
		}
		if deps.Interest == nil {
			deps.Interest = def.Interest
		}
	}
	switch strategy {
	case StrategyCumulative:
		return NewRestBased(deps), nil
	case StrategyProgressive:
		return NewProgressive(deps), nil
	}
	return nil, &generic.UnsupportedStrategyError{Strategy: string(strategy)}
}

// =============================================================================
// RUN - State shared by both strategies for one generation
// =============================================================================

// iterationSlack allows a few periods past the planned installments for
// tranches landing on or after the last due date.
const iterationSlack = 16

type run struct {
	terms         *loan.Terms
	deps          Dependencies
	mc            generic.MathContext
	acc           *Accumulator
	asm           *Assembler
	charges       ChargeEngine
	disbursements DisbursementProcessor
	inline        []loan.ChargeRule
	deferred      []loan.ChargeRule
	endDate       generic.TimePoint

	iterations int
	limit      int
}

func newRun(terms *loan.Terms, deps Dependencies) (*run, error) {
	if err := terms.Validate(); err != nil {
		return nil, fmt.Errorf("validate terms: %w", err)
	}
	mc := terms.EffectiveMathContext()
	charges := ChargeEngine{MathContext: mc}
	inline, deferred := Separate(terms.Charges)

	endDate := deps.Dates.LastRepaymentDate(terms)
	if v := terms.Variations.DueDateVariationFor(endDate); v != nil {
		endDate = v.DateValue
	}
	terms.LoanEndDate = endDate
	terms.ResetFixedInstallment()

	return &run{
		terms:         terms,
		deps:          deps,
		mc:            mc,
		acc:           NewAccumulator(terms),
		asm:           NewAssembler(terms.Currency),
		charges:       charges,
		disbursements: DisbursementProcessor{Charges: charges},
		inline:        inline,
		deferred:      deferred,
		endDate:       endDate,
		limit:         terms.NumberOfRepayments + len(terms.DisbursementPlan()) + iterationSlack,
	}, nil
}

// tick enforces the iteration ceiling.
func (r *run) tick() error {
	r.iterations++
	if r.iterations > r.limit {
		return &generic.UnboundedScheduleError{Iterations: r.iterations, Limit: r.limit}
	}
	return nil
}

// nextDueDate advances the cadence and applies holiday adjustment and any
// due-date shift for the resulting date.
func (r *run) nextDueDate(first bool) generic.TimePoint {
	dates := r.deps.Dates
	actual := dates.NextRepaymentDate(r.acc.ActualRepaymentDate, r.terms, first)
	adj := dates.AdjustRepaymentDate(actual, r.terms)
	r.acc.ActualRepaymentDate = adj.ActualDate
	due := adj.ScheduleDate

	for r.terms.Variations.HasDueDateVariation(due) {
		v := r.terms.Variations.NextDueDateVariation()
		if !v.EffectiveFrom.Equal(due) {
			// stale shift for a date the cadence never reached
			continue
		}
		r.terms.VariationDays += generic.DaysBetween(due, v.DateValue)
		if !v.SpecificToInstallment {
			r.acc.ActualRepaymentDate = v.DateValue
		}
		due = v.DateValue
		break
	}
	return due
}

// splice runs the disbursement processor over [period start, due).
func (r *run) splice(due generic.TimePoint) ([]Period, bool, error) {
	periods, disbursed, err := r.disbursements.Process(r.terms, r.acc, r.acc.PeriodStart, due)
	if err != nil {
		return nil, false, err
	}
	r.asm.Add(periods...)
	return periods, disbursed, nil
}

// closePeriod books the split of one repayment window ending on due.
// Installment fees apply to every full window, whatever the rest lag.
func (r *run) closePeriod(due generic.TimePoint, split interest.PrincipalInterest) {
	acc := r.acc
	principal := split.Principal
	if principal.GreaterThan(acc.Outstanding) {
		principal = acc.Outstanding
	}
	interestDue := split.Interest
	acc.Outstanding = acc.Outstanding.Sub(principal)

	w := ChargeWindow{
		From:                        acc.PeriodStart,
		Due:                         due,
		Principal:                   principal,
		Interest:                    interestDue,
		ScheduledPrincipal:          acc.PrincipalToBeScheduled,
		ScheduledInterest:           acc.TotalInterest,
		InstallmentChargeApplicable: true,
		FirstPeriod:                 acc.IsFirstPeriod(),
	}
	fees := r.charges.FeesDueWithin(r.inline, w)
	penalties := r.charges.PenaltiesDueWithin(r.inline, w)

	acc.TotalInterest = acc.TotalInterest.Add(interestDue)
	acc.TotalFees = acc.TotalFees.Add(fees)
	acc.TotalPenalties = acc.TotalPenalties.Add(penalties)

	if principal.IsZero() && r.asm.MergeIntoLastRepayment(interestDue, fees, penalties) {
		acc.TotalExpected = generic.Sum(acc.Currency, acc.TotalExpected, interestDue, fees, penalties)
	} else {
		row := &Repayment{
			InstallmentNo: acc.NextInstallment(),
			PeriodNo:      acc.PeriodNumber,
			From:          acc.PeriodStart,
			Due:           due,
			Principal:     principal,
			Interest:      interestDue,
			Fees:          fees,
			Penalties:     penalties,
			Outstanding:   acc.Outstanding,
		}
		r.asm.AddRepayment(row)
		acc.TotalPrincipal = acc.TotalPrincipal.Add(principal)
		acc.TotalExpected = acc.TotalExpected.Add(row.Total())
		acc.PeriodNumber++
	}

	restDate := r.deps.Dates.NextRestDate(due.AddDays(-1), r.terms)
	acc.PendingPrincipal.Add(restDate, principal)
	acc.OutstandingForRest = acc.OutstandingForRest.Sub(acc.PendingPrincipal.DrainThrough(due))
	acc.PeriodStart = due
}

// flushTrailing emits tranches left after the last installment.
func (r *run) flushTrailing() error {
	if r.acc.Tranches.Len() == 0 {
		return nil
	}
	periods, err := r.disbursements.Flush(r.terms, r.acc)
	if err != nil {
		return err
	}
	r.asm.Add(periods...)
	return nil
}

// finish applies deferred charges and freezes the rows.
func (r *run) finish() *Model {
	r.charges.Reapportion(r.asm.Repayments(), r.deferred, r.acc)
	return r.asm.Build(r.acc.LoanTermInDays)
}

// fixedInstallment is the installment forced for the current period, if any.
func (r *run) fixedInstallment() *generic.Money {
	if r.acc.PeriodFixedInstallment != nil {
		return r.acc.PeriodFixedInstallment
	}
	return r.terms.CurrentFixedInstallment
}

// applyInstallmentVariation consumes an installment-amount variation for
// the installment due on due.
func (r *run) applyInstallmentVariation(due generic.TimePoint) *loan.TermVariation {
	v := r.terms.Variations.InstallmentAmountFor(due)
	if v == nil {
		return nil
	}
	amount := generic.Money{Amount: v.DecimalValue, Currency: r.terms.Currency}
	if v.SpecificToInstallment {
		r.acc.PeriodFixedInstallment = &amount
	} else {
		r.terms.CurrentFixedInstallment = &amount
	}
	return v
}
