package schedule

import (
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// CHARGE APPORTIONMENT
// =============================================================================

// ChargeWindow is the period a charge amount is computed for.
type ChargeWindow struct {
	From      generic.TimePoint
	Due       generic.TimePoint
	Principal generic.Money // this period
	Interest  generic.Money // this period

	ScheduledPrincipal generic.Money // loan level
	ScheduledInterest  generic.Money // loan level

	InstallmentChargeApplicable bool
	FirstPeriod                 bool
}

type ChargeEngine struct {
	MathContext generic.MathContext
}

// FeesDueWithin sums the fee charges falling into the window.
func (e ChargeEngine) FeesDueWithin(charges []loan.ChargeRule, w ChargeWindow) generic.Money {
	return e.DueWithin(charges, w, false)
}

// PenaltiesDueWithin sums the penalty charges falling into the window.
func (e ChargeEngine) PenaltiesDueWithin(charges []loan.ChargeRule, w ChargeWindow) generic.Money {
	return e.DueWithin(charges, w, true)
}

// DueWithin applies, per charge:
//
//  1. installment fee: percentage of this period's principal, interest or
//     both, or the flat amount, for every installment in its window
//  2. overdue installment, percentage, due in window: the fixed charge amount
//  3. percentage, due in window: percentage of the loan-level principal,
//     interest or both
//  4. flat, due in window: the amount
//
// Disbursement charges never count here.
func (e ChargeEngine) DueWithin(charges []loan.ChargeRule, w ChargeWindow, penalty bool) generic.Money {
	total := generic.Zero(w.Principal.Currency)
	for _, c := range charges {
		if c.Penalty != penalty || c.IsDueAtDisbursement() {
			continue
		}
		total = total.Add(e.amountFor(c, w))
	}
	return total
}

func (e ChargeEngine) amountFor(c loan.ChargeRule, w ChargeWindow) generic.Money {
	zero := generic.Zero(w.Principal.Currency)

	if c.IsInstallmentFee() {
		if !w.InstallmentChargeApplicable || !c.AppliesToInstallment(w.Due) {
			return zero
		}
		if !c.IsPercentage() {
			return e.flat(c, zero)
		}
		return e.percentOf(c, w.Principal, w.Interest)
	}

	due := c.IsDueWithin(w.From, w.Due, w.FirstPeriod)
	switch {
	case !due:
		return zero
	case c.IsOverdueInstallment() && c.IsPercentage():
		if c.ChargeAmount == nil {
			return zero
		}
		return *c.ChargeAmount
	case c.IsPercentage():
		return e.percentOf(c, w.ScheduledPrincipal, w.ScheduledInterest)
	default:
		return e.flat(c, zero)
	}
}

func (e ChargeEngine) percentOf(c loan.ChargeRule, principal, interest generic.Money) generic.Money {
	var base generic.Money
	switch c.Calculation {
	case loan.ChargePercentOfInterest:
		base = interest
	case loan.ChargePercentOfAmountAndInterest:
		base = principal.Add(interest)
	default:
		base = principal
	}
	amount := generic.Money{Amount: e.MathContext.Percent(base.Amount, c.Amount), Currency: base.Currency}
	return e.MathContext.RoundMoney(amount)
}

func (e ChargeEngine) flat(c loan.ChargeRule, zero generic.Money) generic.Money {
	return generic.Money{Amount: c.Amount, Currency: zero.Currency}
}

// DisbursementCharges totals the disbursement-time charges of one tranche.
// Flat charges belong to the initial disbursement only; percentage charges
// apply to every tranche amount.
func (e ChargeEngine) DisbursementCharges(charges []loan.ChargeRule, tranche generic.Money, initial bool) generic.Money {
	total := tranche.Zero()
	for _, c := range charges {
		if !c.IsDueAtDisbursement() {
			continue
		}
		if c.IsPercentage() {
			total = total.Add(e.percentOf(c, tranche, tranche.Zero()))
			continue
		}
		if initial {
			total = total.Add(e.flat(c, tranche.Zero()))
		}
	}
	return total
}

// Separate splits out the charges whose amount needs the final schedule
// totals; they are applied by Reapportion after the period loop.
func Separate(charges []loan.ChargeRule) (inline, deferred []loan.ChargeRule) {
	for _, c := range charges {
		if c.NeedsFinalTotals() {
			deferred = append(deferred, c)
			continue
		}
		inline = append(inline, c)
	}
	return inline, deferred
}

// Reapportion applies deferred charges to the repayment rows against the
// final scheduled principal and interest.
func (e ChargeEngine) Reapportion(rows []*Repayment, deferred []loan.ChargeRule, acc *Accumulator) {
	if len(deferred) == 0 {
		return
	}
	for _, r := range rows {
		w := ChargeWindow{
			From:                        r.From,
			Due:                         r.Due,
			Principal:                   r.Principal,
			Interest:                    r.Interest,
			ScheduledPrincipal:          acc.PrincipalToBeScheduled,
			ScheduledInterest:           acc.TotalInterest,
			InstallmentChargeApplicable: !r.RecalculatedInterest,
			FirstPeriod:                 r.PeriodNo == 1,
		}
		fees := e.FeesDueWithin(deferred, w)
		penalties := e.PenaltiesDueWithin(deferred, w)

		r.Fees = r.Fees.Add(fees)
		r.Penalties = r.Penalties.Add(penalties)
		acc.TotalFees = acc.TotalFees.Add(fees)
		acc.TotalPenalties = acc.TotalPenalties.Add(penalties)
		acc.TotalExpected = acc.TotalExpected.Add(fees).Add(penalties)
	}
}
