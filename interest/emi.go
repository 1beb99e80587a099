package interest

import (
	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// ALLOCATOR
// =============================================================================

// PrincipalInterest is the split of one installment.
type PrincipalInterest struct {
	Principal generic.Money
	Interest  generic.Money
}

// SplitInput describes the period being split in rest mode.
type SplitInput struct {
	Index          int
	From           generic.TimePoint
	Due            generic.TimePoint
	BalanceForRest generic.Money
	Outstanding    generic.Money
	FixedEMI       *generic.Money
	Last           bool
}

// Allocator is the interest collaborator of the schedule engine.
type Allocator interface {
	// Calculate derives the installment of rows fromIndex.. against balance.
	Calculate(m *Model, fromIndex int, balance generic.Money)
	// Split returns the principal and interest of one period.
	Split(m *Model, in SplitInput) PrincipalInterest
	// ChangeInterestRate sets a new annual rate from effective onwards.
	ChangeInterestRate(m *Model, effective generic.TimePoint, annualRate decimal.Decimal)
	// AddDisbursement overlays a balance change (negative for down
	// payments) and re-amortizes from the period holding date.
	AddDisbursement(m *Model, date generic.TimePoint, amount generic.Money)
}

// EMICalculator implements declining-balance equal installments, equal
// principal and flat interest.
type EMICalculator struct{}

var _ Allocator = EMICalculator{}

func NewEMICalculator() EMICalculator { return EMICalculator{} }

func (EMICalculator) Calculate(m *Model, fromIndex int, balance generic.Money) {
	if fromIndex < 0 {
		fromIndex = 0
	}
	m.recalculate(fromIndex, balance)
}

func (EMICalculator) Split(m *Model, in SplitInput) PrincipalInterest {
	zero := generic.Zero(m.settings.Currency)
	if m.tracked {
		if in.Index >= len(m.periods) {
			return PrincipalInterest{Principal: in.Outstanding.Max(zero), Interest: zero}
		}
		p := m.periods[in.Index]
		return PrincipalInterest{Principal: p.Principal, Interest: p.Interest}
	}

	mc := m.settings.MathContext
	factor := m.periodFactor(in.From, in.Due)

	var interest generic.Money
	if m.settings.Method == loan.InterestFlat {
		interest = mc.RoundMoney(m.flatBase.Mul(factor))
	} else {
		interest = mc.RoundMoney(in.BalanceForRest.Mul(factor))
	}

	var principal generic.Money
	switch {
	case in.FixedEMI != nil:
		principal = in.FixedEMI.Sub(interest)
	case in.Index < len(m.periods) && m.periods[in.Index].fixedEMI != nil:
		principal = m.periods[in.Index].fixedEMI.Sub(interest)
	case m.settings.Method == loan.InterestFlat || m.settings.Amortization == loan.AmortizationEqualPrincipal:
		principal = m.levelPrincipal
	default:
		principal = m.EMI(in.Index).Sub(interest)
	}
	principal = principal.Max(zero)

	last := in.Last || in.Index >= len(m.periods)-1
	if last || principal.GreaterThan(in.Outstanding) {
		principal = in.Outstanding.Max(zero)
	}
	return PrincipalInterest{Principal: principal, Interest: interest}
}

func (EMICalculator) ChangeInterestRate(m *Model, effective generic.TimePoint, annualRate decimal.Decimal) {
	m.addRate(RateChange{EffectiveFrom: effective, AnnualRate: annualRate})
	if m.tracked && len(m.periods) > 0 {
		m.amortize(m.IndexOf(effective))
	}
}

func (EMICalculator) AddDisbursement(m *Model, date generic.TimePoint, amount generic.Money) {
	if len(m.periods) == 0 {
		return
	}
	index := m.IndexOf(date)
	m.addChange(index, BalanceChange{Date: date, Amount: amount})
	m.tracked = true
	m.amortize(index)
}
