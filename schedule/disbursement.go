package schedule

import (
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// DISBURSEMENT PROCESSOR - Splices tranches into the period sequence
// =============================================================================

type DisbursementProcessor struct {
	Charges ChargeEngine
}

// Initial folds every tranche dated on the period start into one
// disbursement row and carves their down payments.
func (p DisbursementProcessor) Initial(terms *loan.Terms, acc *Accumulator) ([]Period, error) {
	entry, ok := acc.Tranches.On(acc.PeriodStart)
	if !ok {
		return nil, nil
	}
	return p.book(terms, acc, entry)
}

// Process splices the tranches dated in [windowStart, windowEnd). It
// reports whether any tranche was processed.
func (p DisbursementProcessor) Process(terms *loan.Terms, acc *Accumulator, windowStart, windowEnd generic.TimePoint) ([]Period, bool, error) {
	var out []Period
	entries := acc.Tranches.Within(windowStart, windowEnd)
	for _, entry := range entries {
		periods, err := p.book(terms, acc, entry)
		if err != nil {
			return nil, false, err
		}
		out = append(out, periods...)
	}
	return out, len(entries) > 0, nil
}

// Flush emits the tranches left after the last installment.
func (p DisbursementProcessor) Flush(terms *loan.Terms, acc *Accumulator) ([]Period, error) {
	var out []Period
	for _, entry := range acc.Tranches.All() {
		periods, err := p.book(terms, acc, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, periods...)
	}
	return out, nil
}

// book disburses one date's tranches. The first disbursement of the loan
// is the principal itself; later ones raise the nominal principal.
func (p DisbursementProcessor) book(terms *loan.Terms, acc *Accumulator, entry TrancheEntry) ([]Period, error) {
	initial := acc.Disbursed.IsZero()
	total := generic.Zero(acc.Currency)
	for _, amount := range entry.Amounts {
		if limit := terms.MaxOutstandingAmount; limit != nil && acc.Outstanding.Add(amount).GreaterThan(*limit) {
			return nil, &generic.CapExceededError{Cap: *limit, Amount: amount, Date: entry.Date}
		}
		acc.addBalance(amount)
		total = total.Add(amount)
	}
	if !initial {
		terms.Principal = terms.Principal.Add(total)
	}
	terms.ResetFixedInstallment()

	charges := p.Charges.DisbursementCharges(terms.Charges, total, initial)
	acc.TotalFees = acc.TotalFees.Add(charges)
	acc.TotalExpected = acc.TotalExpected.Add(charges)

	out := []Period{&Disbursement{On: entry.Date, Amount: total, Charges: charges}}
	if terms.DownPaymentEnabled {
		for _, amount := range entry.Amounts {
			out = append(out, ApplyDownPayment(terms, acc, entry.Date, amount))
		}
	}
	acc.Tranches.Remove(entry.Date)
	return out, nil
}
