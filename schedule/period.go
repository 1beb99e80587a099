package schedule

import (
	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// PERIODS - Tagged variant of schedule rows
// =============================================================================

type PeriodKind string

const (
	KindDisbursement PeriodKind = "disbursement"
	KindDownPayment  PeriodKind = "down_payment"
	KindRepayment    PeriodKind = "repayment"
)

// Period is one row of a schedule. The concrete types are Disbursement,
// DownPayment and Repayment.
type Period interface {
	Kind() PeriodKind
	Date() generic.TimePoint
}

// Disbursement records a tranche paid out to the borrower.
type Disbursement struct {
	On      generic.TimePoint
	Amount  generic.Money
	Charges generic.Money
}

func (d Disbursement) Kind() PeriodKind        { return KindDisbursement }
func (d Disbursement) Date() generic.TimePoint { return d.On }

// DownPayment is the borrower's mandatory contribution carved out of a
// tranche on its disbursement date.
type DownPayment struct {
	InstallmentNo int
	On            generic.TimePoint
	Amount        generic.Money
	BalanceAfter  generic.Money
}

func (d DownPayment) Kind() PeriodKind        { return KindDownPayment }
func (d DownPayment) Date() generic.TimePoint { return d.On }

// Repayment is one installment covering the window (From, Due].
type Repayment struct {
	InstallmentNo int
	PeriodNo      int
	From          generic.TimePoint
	Due           generic.TimePoint
	Principal     generic.Money
	Interest      generic.Money
	Fees          generic.Money
	Penalties     generic.Money
	Outstanding   generic.Money

	// RecalculatedInterest marks a partial period closed before its due
	// date with interest recalculated up to the closing date. Installment
	// fees are not charged on it. Periods the engine generates are always
	// complete.
	RecalculatedInterest bool
}

func (r Repayment) Kind() PeriodKind        { return KindRepayment }
func (r Repayment) Date() generic.TimePoint { return r.Due }

// Total is what the borrower owes for the installment.
func (r Repayment) Total() generic.Money {
	return r.Principal.Add(r.Interest).Add(r.Fees).Add(r.Penalties)
}

// kindRank orders rows sharing a date: the repayment closing the previous
// window first, then the tranche, then its down payment.
func kindRank(k PeriodKind) int {
	switch k {
	case KindRepayment:
		return 0
	case KindDisbursement:
		return 1
	default:
		return 2
	}
}
