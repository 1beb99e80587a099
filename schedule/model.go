package schedule

import (
	"sort"

	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// MODEL - Immutable generated schedule
// =============================================================================

// Totals are derived from the periods, never accumulated separately, so
// they always agree with the rows.
type Totals struct {
	Disbursed           generic.Money
	DisbursementCharges generic.Money
	Principal           generic.Money // repaid through installments
	DownPayments        generic.Money
	Interest            generic.Money
	Fees                generic.Money // installment fees plus disbursement charges
	Penalties           generic.Money
	Expected            generic.Money // everything the borrower pays
	Unscheduled         generic.Money // tranches past the last installment
}

type Model struct {
	currency       generic.Currency
	periods        []Period
	loanTermInDays int
	totals         Totals
}

// NewModel freezes periods into a schedule. Pointer rows are copied into
// values and ordered by date, installment number and kind.
func NewModel(currency generic.Currency, periods []Period, loanTermInDays int) *Model {
	rows := make([]Period, 0, len(periods))
	for _, p := range periods {
		switch v := p.(type) {
		case *Disbursement:
			rows = append(rows, *v)
		case *DownPayment:
			rows = append(rows, *v)
		case *Repayment:
			rows = append(rows, *v)
		default:
			rows = append(rows, p)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date().Equal(b.Date()) {
			return a.Date().Before(b.Date())
		}
		if ai, bi := installmentNo(a), installmentNo(b); ai != 0 && bi != 0 && ai != bi {
			return ai < bi
		}
		return kindRank(a.Kind()) < kindRank(b.Kind())
	})

	m := &Model{currency: currency, periods: rows, loanTermInDays: loanTermInDays}
	m.totals = deriveTotals(currency, rows)
	return m
}

func deriveTotals(currency generic.Currency, rows []Period) Totals {
	zero := generic.Zero(currency)
	t := Totals{
		Disbursed: zero, DisbursementCharges: zero, Principal: zero, DownPayments: zero,
		Interest: zero, Fees: zero, Penalties: zero, Expected: zero, Unscheduled: zero,
	}
	for _, p := range rows {
		switch v := p.(type) {
		case Disbursement:
			t.Disbursed = t.Disbursed.Add(v.Amount)
			t.DisbursementCharges = t.DisbursementCharges.Add(v.Charges)
		case DownPayment:
			t.DownPayments = t.DownPayments.Add(v.Amount)
		case Repayment:
			t.Principal = t.Principal.Add(v.Principal)
			t.Interest = t.Interest.Add(v.Interest)
			t.Fees = t.Fees.Add(v.Fees)
			t.Penalties = t.Penalties.Add(v.Penalties)
		}
	}
	t.Fees = t.Fees.Add(t.DisbursementCharges)
	t.Expected = generic.Sum(currency, t.Principal, t.DownPayments, t.Interest, t.Fees, t.Penalties)
	t.Unscheduled = t.Disbursed.Sub(t.Principal).Sub(t.DownPayments)
	return t
}

func installmentNo(p Period) int {
	switch v := p.(type) {
	case Repayment:
		return v.InstallmentNo
	case DownPayment:
		return v.InstallmentNo
	}
	return 0
}

func (m *Model) Currency() generic.Currency { return m.currency }
func (m *Model) LoanTermInDays() int        { return m.loanTermInDays }
func (m *Model) Totals() Totals             { return m.totals }
func (m *Model) Len() int                   { return len(m.periods) }

// Periods returns the rows in chronological and installment order.
func (m *Model) Periods() []Period {
	return append([]Period(nil), m.periods...)
}

func (m *Model) Repayments() []Repayment {
	var out []Repayment
	for _, p := range m.periods {
		if r, ok := p.(Repayment); ok {
			out = append(out, r)
		}
	}
	return out
}

func (m *Model) Disbursements() []Disbursement {
	var out []Disbursement
	for _, p := range m.periods {
		if d, ok := p.(Disbursement); ok {
			out = append(out, d)
		}
	}
	return out
}

func (m *Model) DownPayments() []DownPayment {
	var out []DownPayment
	for _, p := range m.periods {
		if d, ok := p.(DownPayment); ok {
			out = append(out, d)
		}
	}
	return out
}

// MaturityDate is the due date of the last installment.
func (m *Model) MaturityDate() generic.TimePoint {
	var last generic.TimePoint
	for _, r := range m.Repayments() {
		if r.Due.After(last) {
			last = r.Due
		}
	}
	return last
}
