package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// DOWN PAYMENT
// =============================================================================

// ComputeDownPayment returns pct percent of base, rounded to the currency
// places and then to the installment multiple. It never exceeds base.
func ComputeDownPayment(pct decimal.Decimal, base generic.Money, multiple decimal.Decimal, mc generic.MathContext) generic.Money {
	amount := generic.Money{Amount: mc.Percent(base.Amount, pct), Currency: base.Currency}
	amount = generic.RoundToMultiple(mc.RoundMoney(amount), multiple)
	return amount.Min(base)
}

// ApplyDownPayment carves a down payment out of a tranche of size base
// disbursed on date and books it against the accumulator.
func ApplyDownPayment(terms *loan.Terms, acc *Accumulator, date generic.TimePoint, base generic.Money) *DownPayment {
	amount := ComputeDownPayment(terms.DownPaymentPercentage, base, terms.InstallmentMultiple, terms.EffectiveMathContext())

	installment := acc.NextInstallment()
	acc.reduceBalance(amount)
	acc.DownPaymentTotal = acc.DownPaymentTotal.Add(amount)
	acc.TotalExpected = acc.TotalExpected.Add(amount)

	terms.Principal = terms.Principal.Sub(amount)
	terms.ResetFixedInstallment()

	return &DownPayment{
		InstallmentNo: installment,
		On:            date,
		Amount:        amount,
		BalanceAfter:  acc.Outstanding,
	}
}
