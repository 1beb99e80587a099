package schedule

import (
	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// ASSEMBLER - Collects rows while the loop runs, freezes them at the end
// =============================================================================

type Assembler struct {
	currency      generic.Currency
	periods       []Period
	repayments    []*Repayment
	lastRepayment *Repayment
}

func NewAssembler(currency generic.Currency) *Assembler {
	return &Assembler{currency: currency}
}

// Add appends disbursement and down-payment rows.
func (a *Assembler) Add(periods ...Period) {
	for _, p := range periods {
		if r, ok := p.(*Repayment); ok {
			a.AddRepayment(r)
			continue
		}
		a.periods = append(a.periods, p)
	}
}

func (a *Assembler) AddRepayment(r *Repayment) {
	a.periods = append(a.periods, r)
	a.repayments = append(a.repayments, r)
	a.lastRepayment = r
}

// MergeIntoLastRepayment folds the interest and charges of a period with no
// principal into the latest repayment. It returns false when there is no
// repayment to merge into; down payments never absorb interest.
func (a *Assembler) MergeIntoLastRepayment(interest, fees, penalties generic.Money) bool {
	r := a.lastRepayment
	if r == nil {
		return false
	}
	r.Interest = r.Interest.Add(interest)
	r.Fees = r.Fees.Add(fees)
	r.Penalties = r.Penalties.Add(penalties)
	return true
}

// Repayments exposes the draft repayment rows for the charge second pass.
func (a *Assembler) Repayments() []*Repayment { return a.repayments }

func (a *Assembler) Build(loanTermInDays int) *Model {
	return NewModel(a.currency, a.periods, loanTermInDays)
}
