package schedule

import (
	"github.com/warp/schedule-engine/calendar"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/interest"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// PROGRESSIVE STRATEGY
// =============================================================================

// Progressive lays out every repayment window first and amortizes one
// interest model over them. Tranches and down payments become balance
// changes overlaid onto the model as the walk reaches them.
type Progressive struct {
	deps Dependencies
}

var _ Engine = (*Progressive)(nil)

func NewProgressive(deps Dependencies) *Progressive {
	return &Progressive{deps: deps}
}

func (e *Progressive) Strategy() Strategy { return StrategyProgressive }

func (e *Progressive) Generate(terms *loan.Terms) (*Model, error) {
	r, err := newRun(terms, e.deps)
	if err != nil {
		return nil, err
	}
	acc := r.acc
	allocator := e.deps.Interest

	windows := r.layout()
	model := interest.NewModel(windows, interest.SettingsFromTerms(terms))
	if len(windows) > 0 {
		for _, v := range terms.Variations.InterestRateChangesFrom(windows[len(windows)-1].Due) {
			allocator.ChangeInterestRate(model, v.EffectiveFrom, v.DecimalValue)
		}
	}
	if terms.CurrentFixedInstallment != nil {
		model.OverrideEMI(0, *terms.CurrentFixedInstallment, false)
	}

	initial, err := r.disbursements.Initial(terms, acc)
	if err != nil {
		return nil, err
	}
	r.asm.Add(initial...)
	e.overlay(model, initial)

	for i, w := range windows {
		if err := e.closeWindow(r, model, i, w.Due, i == len(windows)-1); err != nil {
			return nil, err
		}
	}

	// A tranche dated on the last due date falls outside every window.
	for i := len(windows); !acc.Outstanding.IsZero() || acc.Tranches.AnyOnOrBefore(r.endDate); i++ {
		due := r.nextDueDate(i == 0)
		model.Extend(due)
		if err := e.closeWindow(r, model, i, due, true); err != nil {
			return nil, err
		}
	}

	if terms.MultiDisburse {
		if err := r.flushTrailing(); err != nil {
			return nil, err
		}
	}
	return r.finish(), nil
}

// closeWindow splices the tranches of window i, applies installment
// overrides and books the model's split for it.
func (e *Progressive) closeWindow(r *run, model *interest.Model, i int, due generic.TimePoint, last bool) error {
	acc := r.acc
	terms := r.terms
	if err := r.tick(); err != nil {
		return err
	}
	acc.LoanTermInDays += generic.DaysBetween(acc.PeriodStart, due)

	spliced, disbursed, err := r.splice(due)
	if err != nil {
		return err
	}
	if disbursed {
		model.ClearOverrides(i)
		if terms.CurrentFixedInstallment != nil {
			model.OverrideEMI(i, *terms.CurrentFixedInstallment, false)
		}
	}
	e.overlay(model, spliced)

	if v := r.applyInstallmentVariation(due); v != nil {
		model.OverrideEMI(i, *r.fixedInstallment(), v.SpecificToInstallment)
	}
	acc.PeriodFixedInstallment = nil

	split := e.deps.Interest.Split(model, interest.SplitInput{
		Index:          i,
		From:           acc.PeriodStart,
		Due:            due,
		BalanceForRest: acc.OutstandingForRest,
		Outstanding:    acc.Outstanding,
		Last:           last,
	})
	r.closePeriod(due, split)
	return nil
}

// CalculatePrepayment is not offered by the progressive strategy.
func (e *Progressive) CalculatePrepayment(_ *loan.Terms, _ generic.TimePoint) (*OutstandingAmounts, error) {
	return nil, &generic.UnsupportedStrategyError{Strategy: string(StrategyProgressive), Operation: "prepayment calculation"}
}

// layout computes every repayment window up front through the same
// cadence, holiday and due-date shift rules the rest-based loop uses.
func (r *run) layout() []calendar.RepaymentPeriod {
	windows := make([]calendar.RepaymentPeriod, 0, r.terms.NumberOfRepayments)
	from := r.acc.PeriodStart
	for i := 0; i < r.terms.NumberOfRepayments; i++ {
		due := r.nextDueDate(i == 0)
		windows = append(windows, calendar.RepaymentPeriod{Number: i + 1, From: from, Due: due})
		from = due
	}
	return windows
}

// overlay feeds tranches and down payments to the interest model.
func (e *Progressive) overlay(model *interest.Model, periods []Period) {
	for _, p := range periods {
		switch v := p.(type) {
		case *Disbursement:
			e.deps.Interest.AddDisbursement(model, v.On, v.Amount)
		case *DownPayment:
			e.deps.Interest.AddDisbursement(model, v.On, v.Amount.Neg())
		}
	}
}
