package schedule

import (
	"sort"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// ACCUMULATOR - Running state of one generation
// =============================================================================

// Accumulator is the mutable state threaded through the period loop. One
// run owns one accumulator; it is never shared.
//
// Invariants:
//   - Outstanding = disbursed so far - down payments - principal scheduled
//   - OutstandingForRest lags Outstanding only by PendingPrincipal entries
//     not yet effective
//   - InstallmentNumber advances once per emitted repayment or down payment
type Accumulator struct {
	Currency generic.Currency

	PeriodStart         generic.TimePoint
	ActualRepaymentDate generic.TimePoint

	Outstanding        generic.Money
	OutstandingForRest generic.Money
	PendingPrincipal   *PendingLedger
	Tranches           *TrancheBook

	PrincipalToBeScheduled generic.Money
	Disbursed              generic.Money
	DownPaymentTotal       generic.Money

	TotalPrincipal generic.Money
	TotalInterest  generic.Money
	TotalFees      generic.Money
	TotalPenalties generic.Money
	TotalExpected  generic.Money

	InstallmentNumber int // next number to hand out
	PeriodNumber      int // repayment period being built, 1-based
	LoanTermInDays    int

	PeriodFixedInstallment *generic.Money
}

func NewAccumulator(terms *loan.Terms) *Accumulator {
	zero := generic.Zero(terms.Currency)
	start := terms.RepaymentStart()
	return &Accumulator{
		Currency:               terms.Currency,
		PeriodStart:            start,
		ActualRepaymentDate:    start,
		Outstanding:            zero,
		OutstandingForRest:     zero,
		PendingPrincipal:       NewPendingLedger(terms.Currency),
		Tranches:               NewTrancheBook(terms.DisbursementPlan()),
		PrincipalToBeScheduled: zero,
		Disbursed:              zero,
		DownPaymentTotal:       zero,
		TotalPrincipal:         zero,
		TotalInterest:          zero,
		TotalFees:              zero,
		TotalPenalties:         zero,
		TotalExpected:          zero,
		InstallmentNumber:      1,
		PeriodNumber:           1,
	}
}

// NextInstallment hands out the next installment number.
func (a *Accumulator) NextInstallment() int {
	n := a.InstallmentNumber
	a.InstallmentNumber++
	return n
}

func (a *Accumulator) IsFirstPeriod() bool { return a.PeriodNumber == 1 }

// addBalance books money flowing into the loan (a tranche).
func (a *Accumulator) addBalance(amount generic.Money) {
	a.Outstanding = a.Outstanding.Add(amount)
	a.OutstandingForRest = a.OutstandingForRest.Add(amount)
	a.PrincipalToBeScheduled = a.PrincipalToBeScheduled.Add(amount)
	a.Disbursed = a.Disbursed.Add(amount)
}

// reduceBalance books principal settled outside the installments.
func (a *Accumulator) reduceBalance(amount generic.Money) {
	a.Outstanding = a.Outstanding.Sub(amount)
	a.OutstandingForRest = a.OutstandingForRest.Sub(amount)
	a.PrincipalToBeScheduled = a.PrincipalToBeScheduled.Sub(amount)
}

// =============================================================================
// PENDING LEDGER - Principal reductions waiting for their rest date
// =============================================================================

type pendingEntry struct {
	Date   generic.TimePoint
	Amount generic.Money
}

// PendingLedger is a date-sorted map of principal deltas that lower the
// interest-bearing balance once their effective date is reached.
type PendingLedger struct {
	currency generic.Currency
	entries  []pendingEntry
}

func NewPendingLedger(currency generic.Currency) *PendingLedger {
	return &PendingLedger{currency: currency}
}

// Add accumulates amount on date.
func (l *PendingLedger) Add(date generic.TimePoint, amount generic.Money) {
	i := sort.Search(len(l.entries), func(i int) bool { return !l.entries[i].Date.Before(date) })
	if i < len(l.entries) && l.entries[i].Date.Equal(date) {
		l.entries[i].Amount = l.entries[i].Amount.Add(amount)
		return
	}
	l.entries = append(l.entries, pendingEntry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = pendingEntry{Date: date, Amount: amount}
}

// DrainThrough removes and sums every entry dated on or before date.
func (l *PendingLedger) DrainThrough(date generic.TimePoint) generic.Money {
	total := generic.Zero(l.currency)
	n := 0
	for n < len(l.entries) && l.entries[n].Date.BeforeOrEqual(date) {
		total = total.Add(l.entries[n].Amount)
		n++
	}
	l.entries = l.entries[n:]
	return total
}

func (l *PendingLedger) Total() generic.Money {
	total := generic.Zero(l.currency)
	for _, e := range l.entries {
		total = total.Add(e.Amount)
	}
	return total
}

func (l *PendingLedger) Len() int { return len(l.entries) }

// =============================================================================
// TRANCHE BOOK - Disbursements not yet spliced into the schedule
// =============================================================================

// TrancheEntry holds every tranche planned for one date.
type TrancheEntry struct {
	Date    generic.TimePoint
	Amounts []generic.Money
}

type TrancheBook struct {
	entries []TrancheEntry
}

func NewTrancheBook(tranches []loan.Tranche) *TrancheBook {
	b := &TrancheBook{}
	for _, t := range tranches {
		b.add(t.Date, t.Amount)
	}
	return b
}

func (b *TrancheBook) add(date generic.TimePoint, amount generic.Money) {
	i := sort.Search(len(b.entries), func(i int) bool { return !b.entries[i].Date.Before(date) })
	if i < len(b.entries) && b.entries[i].Date.Equal(date) {
		b.entries[i].Amounts = append(b.entries[i].Amounts, amount)
		return
	}
	b.entries = append(b.entries, TrancheEntry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = TrancheEntry{Date: date, Amounts: []generic.Money{amount}}
}

// Within returns the entries dated in [start, end) without removing them.
func (b *TrancheBook) Within(start, end generic.TimePoint) []TrancheEntry {
	window := generic.DateRange{Start: start, End: end}
	var out []TrancheEntry
	for _, e := range b.entries {
		if window.ContainsHalfOpen(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

// On returns the entry dated exactly on date.
func (b *TrancheBook) On(date generic.TimePoint) (TrancheEntry, bool) {
	for _, e := range b.entries {
		if e.Date.Equal(date) {
			return e, true
		}
	}
	return TrancheEntry{}, false
}

// Remove drops the entry dated on date.
func (b *TrancheBook) Remove(date generic.TimePoint) {
	for i, e := range b.entries {
		if e.Date.Equal(date) {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

// AnyOnOrBefore reports whether a tranche is still waiting on or before date.
func (b *TrancheBook) AnyOnOrBefore(date generic.TimePoint) bool {
	return len(b.entries) > 0 && b.entries[0].Date.BeforeOrEqual(date)
}

// All returns the remaining entries in date order.
func (b *TrancheBook) All() []TrancheEntry {
	return append([]TrancheEntry(nil), b.entries...)
}

func (b *TrancheBook) Len() int { return len(b.entries) }

func (e TrancheEntry) Total(currency generic.Currency) generic.Money {
	return generic.Sum(currency, e.Amounts...)
}
