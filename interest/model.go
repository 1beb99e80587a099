/*
Package interest splits installments into principal and interest.

PURPOSE:
  The schedule engine delegates all interest arithmetic to an Allocator
  working on a period-indexed Model. The model knows the repayment windows,
  the rate in force on every day and, when it tracks its own balance, the
  disbursements and down payments overlaid onto it.

KEY CONCEPTS:
  - Model: One row per repayment period (From, Due, EMI, principal, interest)
  - Rate factor: The fraction of the balance charged as interest over a
    window, from the annual rate and the interest period type
  - Rest mode: The engine supplies the interest-bearing balance per period
    and calls Calculate whenever the installment must be recomputed
  - Tracked mode: AddDisbursement overlays balance changes onto the model,
    which then amortizes itself from the changed period onwards

ROUNDING:
  Interest and principal are rounded to the currency places with the
  MathContext rounding mode. EMIs are rounded the same way, then to the
  installment multiple when one is configured. The last period always takes
  the remaining balance, so rounding never leaves principal behind.

SEE ALSO:
  - emi.go: EMICalculator, the default Allocator
  - schedule/cumulative.go: Rest mode consumer
  - schedule/progressive.go: Tracked mode consumer
*/
package interest

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/calendar"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// SETTINGS
// =============================================================================

type Settings struct {
	Currency            generic.Currency
	MathContext         generic.MathContext
	AnnualRate          decimal.Decimal
	PeriodType          loan.InterestPeriodType
	DaysInYear          int
	Frequency           generic.Frequency
	Method              loan.InterestMethod
	Amortization        loan.AmortizationMethod
	InstallmentMultiple decimal.Decimal
}

func SettingsFromTerms(t *loan.Terms) Settings {
	return Settings{
		Currency:            t.Currency,
		MathContext:         t.EffectiveMathContext(),
		AnnualRate:          t.AnnualNominalRate(),
		PeriodType:          t.InterestPeriodType,
		DaysInYear:          t.DaysInYear,
		Frequency:           t.RepaymentEvery,
		Method:              t.InterestMethod,
		Amortization:        t.Amortization,
		InstallmentMultiple: t.InstallmentMultiple,
	}
}

// =============================================================================
// MODEL
// =============================================================================

type BalanceChange struct {
	Date   generic.TimePoint
	Amount generic.Money
}

type RateChange struct {
	EffectiveFrom generic.TimePoint
	AnnualRate    decimal.Decimal
}

// Period is one row of the model.
type Period struct {
	Index     int
	From      generic.TimePoint
	Due       generic.TimePoint
	EMI       generic.Money
	Opening   generic.Money
	Principal generic.Money
	Interest  generic.Money
	Remaining generic.Money
	Changes   []BalanceChange

	fixedEMI *generic.Money
}

type Model struct {
	settings Settings
	periods  []*Period
	rates    []RateChange
	tracked  bool

	// Derived by the last recalculation.
	levelPrincipal generic.Money
	flatBase       generic.Money
}

func NewModel(windows []calendar.RepaymentPeriod, settings Settings) *Model {
	zero := generic.Zero(settings.Currency)
	m := &Model{
		settings:       settings,
		periods:        make([]*Period, len(windows)),
		levelPrincipal: zero,
		flatBase:       zero,
	}
	for i, w := range windows {
		m.periods[i] = &Period{
			Index:     i,
			From:      w.From,
			Due:       w.Due,
			EMI:       zero,
			Opening:   zero,
			Principal: zero,
			Interest:  zero,
			Remaining: zero,
		}
	}
	return m
}

func (m *Model) Len() int           { return len(m.periods) }
func (m *Model) Tracked() bool      { return m.tracked }
func (m *Model) Settings() Settings { return m.settings }

// Extend appends a row for [last due date, due). The row holds no balance
// until a change is overlaid onto it.
func (m *Model) Extend(due generic.TimePoint) int {
	zero := generic.Zero(m.settings.Currency)
	from := due
	if n := len(m.periods); n > 0 {
		from = m.periods[n-1].Due
	}
	p := &Period{
		Index:     len(m.periods),
		From:      from,
		Due:       due,
		EMI:       zero,
		Opening:   zero,
		Principal: zero,
		Interest:  zero,
		Remaining: zero,
	}
	m.periods = append(m.periods, p)
	if m.tracked {
		m.amortize(p.Index)
	}
	return p.Index
}

// Period returns a copy of row i.
func (m *Model) Period(i int) Period {
	p := *m.periods[i]
	p.Changes = append([]BalanceChange(nil), p.Changes...)
	return p
}

// EMI returns the installment of row i, or of the last row past the end.
func (m *Model) EMI(i int) generic.Money {
	if len(m.periods) == 0 {
		return generic.Zero(m.settings.Currency)
	}
	if i >= len(m.periods) {
		i = len(m.periods) - 1
	}
	if p := m.periods[i]; p.fixedEMI != nil {
		return *p.fixedEMI
	}
	return m.periods[i].EMI
}

func (m *Model) TotalInterest() generic.Money {
	total := generic.Zero(m.settings.Currency)
	for _, p := range m.periods {
		total = total.Add(p.Interest)
	}
	return total
}

// RateOn returns the annual rate in force on date.
func (m *Model) RateOn(date generic.TimePoint) decimal.Decimal {
	rate := m.settings.AnnualRate
	for _, rc := range m.rates {
		if rc.EffectiveFrom.After(date) {
			break
		}
		rate = rc.AnnualRate
	}
	return rate
}

// IndexOf returns the row whose [From, Due) window holds date. Dates before
// the first window map to row 0, dates on or after the last due date to the
// last row.
func (m *Model) IndexOf(date generic.TimePoint) int {
	for i, p := range m.periods {
		if date.Before(p.Due) {
			return i
		}
	}
	return len(m.periods) - 1
}

// OverrideEMI fixes the installment of row index. Unless onlyThis, later
// rows keep the same installment.
func (m *Model) OverrideEMI(index int, amount generic.Money, onlyThis bool) {
	if index < 0 || index >= len(m.periods) {
		return
	}
	for i := index; i < len(m.periods); i++ {
		fixed := amount
		m.periods[i].fixedEMI = &fixed
		if onlyThis {
			break
		}
	}
	if m.tracked {
		m.amortize(index)
	}
}

// ClearOverrides drops installment overrides from row index onwards.
func (m *Model) ClearOverrides(index int) {
	if index < 0 {
		index = 0
	}
	for i := index; i < len(m.periods); i++ {
		m.periods[i].fixedEMI = nil
	}
}

// =============================================================================
// RATE FACTORS
// =============================================================================

// periodFactor is the interest fraction of a whole [from, due) window.
func (m *Model) periodFactor(from, due generic.TimePoint) decimal.Decimal {
	return m.segmentFactor(from, due, from, due)
}

// segmentFactor is the interest fraction for [a, b) inside the period
// [from, due), split wherever the rate changes.
func (m *Model) segmentFactor(a, b, from, due generic.TimePoint) decimal.Decimal {
	if !b.After(a) {
		return decimal.Zero
	}
	total := decimal.Zero
	cursor := a
	for _, rc := range m.rates {
		if !rc.EffectiveFrom.After(cursor) {
			continue
		}
		if !rc.EffectiveFrom.Before(b) {
			break
		}
		total = total.Add(m.rateFactor(generic.DaysBetween(cursor, rc.EffectiveFrom), m.RateOn(cursor), from, due))
		cursor = rc.EffectiveFrom
	}
	return total.Add(m.rateFactor(generic.DaysBetween(cursor, b), m.RateOn(cursor), from, due))
}

func (m *Model) rateFactor(days int, annualRate decimal.Decimal, from, due generic.TimePoint) decimal.Decimal {
	mc := m.settings.MathContext
	if days <= 0 || annualRate.IsZero() {
		return decimal.Zero
	}
	fraction := mc.Div(annualRate, decimal.NewFromInt(100))
	dayCount := decimal.NewFromInt(int64(days))

	if m.settings.PeriodType == loan.InterestPeriodDaily {
		return mc.Div(fraction.Mul(dayCount), decimal.NewFromInt(int64(m.yearDays(from))))
	}

	periodDays := generic.DaysBetween(from, due)
	perPeriod := mc.Div(fraction, m.settings.Frequency.PeriodsPerYear(mc, m.yearDays(from)))
	if periodDays <= 0 || days == periodDays {
		return perPeriod
	}
	return mc.Div(perPeriod.Mul(dayCount), decimal.NewFromInt(int64(periodDays)))
}

func (m *Model) yearDays(date generic.TimePoint) int {
	if m.settings.DaysInYear > 0 {
		return m.settings.DaysInYear
	}
	if generic.IsLeapYear(date.Year()) {
		return 366
	}
	return 365
}

// =============================================================================
// AMORTIZATION
// =============================================================================

// recalculate derives the installment for rows from..end against balance.
func (m *Model) recalculate(from int, balance generic.Money) {
	remaining := len(m.periods) - from
	if remaining <= 0 {
		return
	}
	mc := m.settings.MathContext
	count := decimal.NewFromInt(int64(remaining))

	m.flatBase = balance
	m.levelPrincipal = mc.RoundMoney(generic.Money{Amount: mc.Div(balance.Amount, count), Currency: balance.Currency})

	emi := m.annuity(from, balance)
	if m.settings.Method == loan.InterestFlat || m.settings.Amortization == loan.AmortizationEqualPrincipal {
		emi = m.levelPrincipal
	}
	for i := from; i < len(m.periods); i++ {
		m.periods[i].EMI = emi
	}
}

// annuity is the level installment repaying balance over rows from..end,
// allowing a different rate factor in every row:
//
//	EMI = B / sum_k prod_{i<=k} 1/(1+r_i)
func (m *Model) annuity(from int, balance generic.Money) generic.Money {
	mc := m.settings.MathContext
	one := decimal.NewFromInt(1)
	discount := decimal.Zero
	prod := one
	for i := from; i < len(m.periods); i++ {
		p := m.periods[i]
		r := m.periodFactor(p.From, p.Due)
		prod = mc.Div(prod, one.Add(r))
		discount = discount.Add(prod)
	}
	emi := generic.Money{Amount: mc.Div(balance.Amount, discount), Currency: balance.Currency}
	return generic.RoundToMultiple(mc.RoundMoney(emi), m.settings.InstallmentMultiple)
}

// amortize recomputes every row from index onwards from the balance
// changes the model holds.
func (m *Model) amortize(from int) {
	if from < 0 {
		from = 0
	}
	mc := m.settings.MathContext
	zero := generic.Zero(m.settings.Currency)

	for i := from; i < len(m.periods); i++ {
		p := m.periods[i]
		opening := zero
		if i > 0 {
			opening = m.periods[i-1].Remaining
		}
		p.Opening = opening

		balance := opening
		cursor := p.From
		accrued := decimal.Zero
		for _, ch := range p.Changes {
			if ch.Date.After(cursor) {
				accrued = accrued.Add(balance.Amount.Mul(m.segmentFactor(cursor, ch.Date, p.From, p.Due)))
				cursor = ch.Date
			}
			balance = balance.Add(ch.Amount)
		}
		accrued = accrued.Add(balance.Amount.Mul(m.segmentFactor(cursor, p.Due, p.From, p.Due)))

		if i == from || len(p.Changes) > 0 || m.rateChangesWithin(p) || m.overrideEndsBefore(i) {
			m.recalculate(i, balance)
		}

		interest := mc.RoundMoney(generic.Money{Amount: accrued, Currency: m.settings.Currency})
		if m.settings.Method == loan.InterestFlat {
			interest = mc.RoundMoney(m.flatBase.Mul(m.periodFactor(p.From, p.Due)))
		}

		principal := m.principalFor(p, interest)
		if i == len(m.periods)-1 || principal.GreaterThan(balance) {
			principal = balance.Max(zero)
		}

		p.Interest = interest
		p.Principal = principal
		p.Remaining = balance.Sub(principal)
	}
}

func (m *Model) principalFor(p *Period, interest generic.Money) generic.Money {
	zero := generic.Zero(m.settings.Currency)
	var principal generic.Money
	switch {
	case p.fixedEMI != nil:
		principal = p.fixedEMI.Sub(interest)
	case m.settings.Method == loan.InterestFlat || m.settings.Amortization == loan.AmortizationEqualPrincipal:
		principal = m.levelPrincipal
	default:
		principal = p.EMI.Sub(interest)
	}
	return principal.Max(zero)
}

// overrideEndsBefore is true on the first row after a single-period
// installment override; the rows from there are re-amortized.
func (m *Model) overrideEndsBefore(i int) bool {
	return i > 0 && m.periods[i-1].fixedEMI != nil && m.periods[i].fixedEMI == nil
}

func (m *Model) rateChangesWithin(p *Period) bool {
	for _, rc := range m.rates {
		if rc.EffectiveFrom.AfterOrEqual(p.From) && rc.EffectiveFrom.Before(p.Due) {
			return true
		}
	}
	return false
}

func (m *Model) addRate(rc RateChange) {
	m.rates = append(m.rates, rc)
	sort.SliceStable(m.rates, func(i, j int) bool {
		return m.rates[i].EffectiveFrom.Before(m.rates[j].EffectiveFrom)
	})
}

func (m *Model) addChange(index int, ch BalanceChange) {
	p := m.periods[index]
	p.Changes = append(p.Changes, ch)
	sort.SliceStable(p.Changes, func(i, j int) bool {
		return p.Changes[i].Date.Before(p.Changes[j].Date)
	})
}
