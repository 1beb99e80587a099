package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/interest"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// REST-BASED STRATEGY
// =============================================================================

// RestBased walks the schedule one period at a time. Interest is charged on
// the outstanding-balance-for-rest, which only drops once a principal
// reduction reaches its rest date.
type RestBased struct {
	deps Dependencies
}

var _ Engine = (*RestBased)(nil)

func NewRestBased(deps Dependencies) *RestBased {
	return &RestBased{deps: deps}
}

func (e *RestBased) Strategy() Strategy { return StrategyCumulative }

func (e *RestBased) Generate(terms *loan.Terms) (*Model, error) {
	r, err := newRun(terms, e.deps)
	if err != nil {
		return nil, err
	}
	acc := r.acc

	initial, err := r.disbursements.Initial(terms, acc)
	if err != nil {
		return nil, err
	}
	r.asm.Add(initial...)

	model := interest.NewModel(e.deps.Dates.RepaymentPeriods(acc.PeriodStart, terms), interest.SettingsFromTerms(terms))
	allocator := e.deps.Interest

	recalculate := true
	for index := 0; !acc.Outstanding.IsZero() || acc.Tranches.AnyOnOrBefore(r.endDate); index++ {
		if err := r.tick(); err != nil {
			return nil, err
		}

		due := r.nextDueDate(index == 0)
		acc.LoanTermInDays += generic.DaysBetween(acc.PeriodStart, due)

		_, disbursed, err := r.splice(due)
		if err != nil {
			return nil, err
		}
		if disbursed {
			recalculate = true
		}

		for _, v := range terms.Variations.InterestRateChangesFrom(due) {
			allocator.ChangeInterestRate(model, v.EffectiveFrom, v.DecimalValue)
			recalculate = true
		}
		r.applyInstallmentVariation(due)

		if recalculate {
			allocator.Calculate(model, index, acc.OutstandingForRest)
			recalculate = false
		}

		split := allocator.Split(model, interest.SplitInput{
			Index:          index,
			From:           acc.PeriodStart,
			Due:            due,
			BalanceForRest: acc.OutstandingForRest,
			Outstanding:    acc.Outstanding,
			FixedEMI:       r.fixedInstallment(),
			Last:           index >= terms.NumberOfRepayments-1,
		})
		if fixed := r.fixedInstallment(); fixed != nil && fixed.LessThan(split.Interest) {
			return nil, &generic.InstallmentBelowInterestError{Installment: *fixed, Interest: split.Interest, Due: due}
		}
		r.closePeriod(due, split)

		if acc.PeriodFixedInstallment != nil {
			acc.PeriodFixedInstallment = nil
			recalculate = true
		}
	}

	if terms.MultiDisburse {
		if err := r.flushTrailing(); err != nil {
			return nil, err
		}
	}
	return r.finish(), nil
}

// =============================================================================
// PREPAYMENT
// =============================================================================

// OutstandingAmounts is what closes the loan on a date, assuming nothing
// has been repaid yet.
type OutstandingAmounts struct {
	OnDate    generic.TimePoint
	Principal generic.Money
	Interest  generic.Money
	Fees      generic.Money
	Penalties generic.Money
}

func (o OutstandingAmounts) Total() generic.Money {
	return o.Principal.Add(o.Interest).Add(o.Fees).Add(o.Penalties)
}

// CalculatePrepayment charges the principal disbursed net of down payments
// up to onDate, the interest and charges of installments already due, and
// the interest of the running installment pro rata by days.
func (e *RestBased) CalculatePrepayment(terms *loan.Terms, onDate generic.TimePoint) (*OutstandingAmounts, error) {
	model, err := e.Generate(terms.Clone())
	if err != nil {
		return nil, err
	}
	mc := terms.EffectiveMathContext()
	zero := generic.Zero(terms.Currency)
	out := &OutstandingAmounts{OnDate: onDate, Principal: zero, Interest: zero, Fees: zero, Penalties: zero}

	for _, d := range model.Disbursements() {
		if d.On.BeforeOrEqual(onDate) {
			out.Principal = out.Principal.Add(d.Amount)
			out.Fees = out.Fees.Add(d.Charges)
		}
	}
	for _, d := range model.DownPayments() {
		if d.On.BeforeOrEqual(onDate) {
			out.Principal = out.Principal.Sub(d.Amount)
		}
	}
	for _, rp := range model.Repayments() {
		switch {
		case rp.Due.BeforeOrEqual(onDate):
			out.Interest = out.Interest.Add(rp.Interest)
			out.Fees = out.Fees.Add(rp.Fees)
			out.Penalties = out.Penalties.Add(rp.Penalties)
		case rp.From.Before(onDate):
			elapsed := decimal.NewFromInt(int64(generic.DaysBetween(rp.From, onDate)))
			length := decimal.NewFromInt(int64(generic.DaysBetween(rp.From, rp.Due)))
			share := mc.Div(elapsed, length)
			out.Interest = out.Interest.Add(mc.RoundMoney(rp.Interest.Mul(share)))
		}
	}
	return out, nil
}
