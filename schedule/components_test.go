package schedule_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
	"github.com/warp/schedule-engine/schedule"
)

// =============================================================================
// PENDING LEDGER & TRANCHE BOOK
// =============================================================================

func TestPendingLedger_DrainThrough(t *testing.T) {
	ledger := schedule.NewPendingLedger(usd)
	ledger.Add(date(time.March, 15), money("100"))
	ledger.Add(date(time.February, 15), money("50"))
	ledger.Add(date(time.March, 15), money("25"))

	assert.Equal(t, 2, ledger.Len())
	assertMoney(t, "0", ledger.DrainThrough(date(time.February, 14)))
	assertMoney(t, "50", ledger.DrainThrough(date(time.February, 15)))
	assertMoney(t, "125", ledger.Total())
	assertMoney(t, "125", ledger.DrainThrough(date(time.December, 31)))
	assert.Equal(t, 0, ledger.Len())
}

func TestTrancheBook_WithinIsHalfOpen(t *testing.T) {
	book := schedule.NewTrancheBook([]loan.Tranche{
		{Date: date(time.February, 15), Amount: money("200")},
		{Date: date(time.January, 15), Amount: money("1000")},
		{Date: date(time.February, 15), Amount: money("50")},
	})

	entries := book.Within(date(time.January, 15), date(time.February, 15))
	require.Len(t, entries, 1)
	assert.Equal(t, date(time.January, 15), entries[0].Date)

	entry, ok := book.On(date(time.February, 15))
	require.True(t, ok)
	assertMoney(t, "250", entry.Total(usd))

	book.Remove(date(time.January, 15))
	assert.True(t, book.AnyOnOrBefore(date(time.February, 15)))
	assert.False(t, book.AnyOnOrBefore(date(time.February, 14)))
}

// =============================================================================
// DISBURSEMENT PROCESSOR
// =============================================================================

func TestDisbursementProcessor_CapExceeded_AppendsNothing(t *testing.T) {
	// GIVEN: $1000 outstanding, a $1200 cap and a $300 tranche
	// WHEN: Processing the window holding the tranche
	// THEN: Cap error, no rows, balance unchanged, tranche still pending

	terms := withSecondTranche(baseTerms("12"), date(time.February, 1), "300")
	limit := money("1200")
	terms.MaxOutstandingAmount = &limit

	acc := schedule.NewAccumulator(terms)
	proc := schedule.DisbursementProcessor{Charges: schedule.ChargeEngine{MathContext: generic.DefaultMathContext()}}

	initial, err := proc.Initial(terms, acc)
	require.NoError(t, err)
	require.Len(t, initial, 1)

	rows, disbursed, err := proc.Process(terms, acc, date(time.January, 15), date(time.February, 15))
	require.ErrorIs(t, err, generic.ErrCapExceeded)
	assert.Nil(t, rows)
	assert.False(t, disbursed)
	assertMoney(t, "1000", acc.Outstanding)
	assert.Equal(t, 1, acc.Tranches.Len())
}

func TestDisbursementProcessor_LaterTranche_RaisesPrincipal(t *testing.T) {
	// GIVEN: A flat $25 and a 1% disbursement charge
	// WHEN: Booking the initial and a later $500 tranche
	// THEN: The flat charge only on the initial, the percentage on both

	terms := withSecondTranche(baseTerms("12"), date(time.February, 1), "500")
	terms.Charges = []loan.ChargeRule{
		{ID: "origination", Time: loan.ChargeAtDisbursement, Calculation: loan.ChargeFlat, Amount: decimal.NewFromInt(25)},
		{ID: "stamp", Time: loan.ChargeAtDisbursement, Calculation: loan.ChargePercentOfAmount, Amount: decimal.NewFromInt(1)},
	}

	acc := schedule.NewAccumulator(terms)
	proc := schedule.DisbursementProcessor{Charges: schedule.ChargeEngine{MathContext: generic.DefaultMathContext()}}

	initial, err := proc.Initial(terms, acc)
	require.NoError(t, err)
	first := initial[0].(*schedule.Disbursement)
	assertMoney(t, "35", first.Charges)

	rows, disbursed, err := proc.Process(terms, acc, date(time.January, 15), date(time.February, 15))
	require.NoError(t, err)
	require.True(t, disbursed)
	second := rows[0].(*schedule.Disbursement)
	assertMoney(t, "5", second.Charges)

	assertMoney(t, "1500", terms.Principal)
	assertMoney(t, "1500", acc.Outstanding)
	assertMoney(t, "40", acc.TotalFees)
}

// =============================================================================
// CHARGE ENGINE
// =============================================================================

func TestChargeEngine_BoundaryRule(t *testing.T) {
	// GIVEN: Flat fees due on the first period start, on its due date and
	//        on the second period's start
	// WHEN: Apportioning into the first two periods
	// THEN: The first period owns [from, due], later periods (from, due]

	engine := schedule.ChargeEngine{MathContext: generic.DefaultMathContext()}
	fee := func(on generic.TimePoint) loan.ChargeRule {
		return loan.ChargeRule{Time: loan.ChargeSpecifiedDueDate, Calculation: loan.ChargeFlat,
			Amount: decimal.NewFromInt(10), DueDate: on}
	}
	charges := []loan.ChargeRule{fee(date(time.January, 15)), fee(date(time.February, 15))}

	first := schedule.ChargeWindow{
		From: date(time.January, 15), Due: date(time.February, 15),
		Principal: money("0"), Interest: money("0"), FirstPeriod: true,
	}
	second := schedule.ChargeWindow{
		From: date(time.February, 15), Due: date(time.March, 15),
		Principal: money("0"), Interest: money("0"),
	}

	assertMoney(t, "20", engine.FeesDueWithin(charges, first))
	assertMoney(t, "0", engine.FeesDueWithin(charges, second))
	assertMoney(t, "0", engine.PenaltiesDueWithin(charges, first))
}

func TestChargeEngine_CalculationBases(t *testing.T) {
	engine := schedule.ChargeEngine{MathContext: generic.DefaultMathContext()}
	w := schedule.ChargeWindow{
		From: date(time.January, 15), Due: date(time.February, 15),
		Principal: money("250"), Interest: money("10"),
		ScheduledPrincipal: money("1000"), ScheduledInterest: money("40"),
		InstallmentChargeApplicable: true, FirstPeriod: true,
	}
	due := date(time.February, 1)
	overdueAmount := money("7.5")

	cases := []struct {
		name   string
		charge loan.ChargeRule
		want   string
	}{
		{"installment % of amount", loan.ChargeRule{Time: loan.ChargeInstallmentFee, Calculation: loan.ChargePercentOfAmount, Amount: decimal.NewFromInt(2)}, "5"},
		{"installment % of interest", loan.ChargeRule{Time: loan.ChargeInstallmentFee, Calculation: loan.ChargePercentOfInterest, Amount: decimal.NewFromInt(10)}, "1"},
		{"installment % of both", loan.ChargeRule{Time: loan.ChargeInstallmentFee, Calculation: loan.ChargePercentOfAmountAndInterest, Amount: decimal.NewFromInt(10)}, "26"},
		{"installment flat", loan.ChargeRule{Time: loan.ChargeInstallmentFee, Calculation: loan.ChargeFlat, Amount: decimal.NewFromInt(3)}, "3"},
		{"due date % of amount", loan.ChargeRule{Time: loan.ChargeSpecifiedDueDate, Calculation: loan.ChargePercentOfAmount, Amount: decimal.NewFromInt(1), DueDate: due}, "10"},
		{"due date % of interest", loan.ChargeRule{Time: loan.ChargeSpecifiedDueDate, Calculation: loan.ChargePercentOfInterest, Amount: decimal.NewFromInt(50), DueDate: due}, "20"},
		{"overdue % uses charge amount", loan.ChargeRule{Time: loan.ChargeOverdueInstallment, Calculation: loan.ChargePercentOfAmount, Amount: decimal.NewFromInt(50), DueDate: due, ChargeAmount: &overdueAmount}, "7.5"},
		{"disbursement never counts", loan.ChargeRule{Time: loan.ChargeAtDisbursement, Calculation: loan.ChargeFlat, Amount: decimal.NewFromInt(99)}, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertMoney(t, tc.want, engine.FeesDueWithin([]loan.ChargeRule{tc.charge}, w))
		})
	}
}

func TestChargeEngine_InstallmentFeeSkippedOnRecalculatedPeriod(t *testing.T) {
	engine := schedule.ChargeEngine{MathContext: generic.DefaultMathContext()}
	charge := loan.ChargeRule{Time: loan.ChargeInstallmentFee, Calculation: loan.ChargeFlat, Amount: decimal.NewFromInt(3)}
	w := schedule.ChargeWindow{
		From: date(time.January, 15), Due: date(time.February, 15),
		Principal: money("250"), Interest: money("10"),
	}

	assertMoney(t, "0", engine.FeesDueWithin([]loan.ChargeRule{charge}, w))
}

func TestSeparate_DefersInterestBasedDueDateCharges(t *testing.T) {
	charges := []loan.ChargeRule{
		{ID: "a", Time: loan.ChargeSpecifiedDueDate, Calculation: loan.ChargePercentOfInterest},
		{ID: "b", Time: loan.ChargeSpecifiedDueDate, Calculation: loan.ChargePercentOfAmount},
		{ID: "c", Time: loan.ChargeSpecifiedDueDate, Calculation: loan.ChargePercentOfAmountAndInterest},
		{ID: "d", Time: loan.ChargeInstallmentFee, Calculation: loan.ChargePercentOfInterest},
	}

	inline, deferred := schedule.Separate(charges)

	require.Len(t, deferred, 2)
	assert.Equal(t, "a", deferred[0].ID)
	assert.Equal(t, "c", deferred[1].ID)
	require.Len(t, inline, 2)
}

func TestGenerate_DeferredChargeUsesFinalInterest(t *testing.T) {
	// GIVEN: A 10% of total interest fee due on March 1
	// WHEN: Generating at 12%
	// THEN: Installment 2 carries 10% of the schedule's total interest

	terms := baseTerms("12")
	terms.Charges = []loan.ChargeRule{{
		ID: "svc", Time: loan.ChargeSpecifiedDueDate, Calculation: loan.ChargePercentOfInterest,
		Amount: decimal.NewFromInt(10), DueDate: date(time.March, 1),
	}}

	model := generate(t, schedule.StrategyCumulative, terms)
	rows := model.Repayments()
	want := generic.DefaultMathContext().RoundMoney(model.Totals().Interest.Mul(decimal.RequireFromString("0.1")))

	assertMoney(t, want.String(), rows[1].Fees)
	assertMoney(t, "0", rows[0].Fees)
	assertMoney(t, want.String(), model.Totals().Fees)
}

// =============================================================================
// ASSEMBLER & MODEL
// =============================================================================

func TestAssembler_MergeNeedsRepayment(t *testing.T) {
	// GIVEN: An assembler holding only a disbursement and a down payment
	// WHEN: Merging a zero-principal period
	// THEN: The merge is refused; after a repayment it lands on that row

	asm := schedule.NewAssembler(usd)
	asm.Add(
		&schedule.Disbursement{On: date(time.January, 15), Amount: money("1000"), Charges: money("0")},
		&schedule.DownPayment{InstallmentNo: 1, On: date(time.January, 15), Amount: money("100"), BalanceAfter: money("900")},
	)
	assert.False(t, asm.MergeIntoLastRepayment(money("5"), money("1"), money("0")))

	row := &schedule.Repayment{
		InstallmentNo: 2, PeriodNo: 1, From: date(time.January, 15), Due: date(time.February, 15),
		Principal: money("0"), Interest: money("9"), Fees: money("0"), Penalties: money("0"), Outstanding: money("900"),
	}
	asm.AddRepayment(row)
	require.True(t, asm.MergeIntoLastRepayment(money("5"), money("1"), money("2")))
	assertMoney(t, "14", row.Interest)
	assertMoney(t, "1", row.Fees)
	assertMoney(t, "2", row.Penalties)

	model := asm.Build(31)
	assert.Equal(t, 3, model.Len())
	assert.Equal(t, 31, model.LoanTermInDays())
	assert.Equal(t, date(time.February, 15), model.MaturityDate())
}

func TestModel_SortsByDateThenKind(t *testing.T) {
	rows := []schedule.Period{
		&schedule.DownPayment{InstallmentNo: 2, On: date(time.February, 15), Amount: money("50"), BalanceAfter: money("1200")},
		&schedule.Disbursement{On: date(time.February, 15), Amount: money("500"), Charges: money("0")},
		&schedule.Repayment{InstallmentNo: 1, PeriodNo: 1, From: date(time.January, 15), Due: date(time.February, 15),
			Principal: money("250"), Interest: money("0"), Fees: money("0"), Penalties: money("0"), Outstanding: money("750")},
		&schedule.Disbursement{On: date(time.January, 15), Amount: money("1000"), Charges: money("0")},
	}

	model := schedule.NewModel(usd, rows, 0)
	kinds := []schedule.PeriodKind{
		schedule.KindDisbursement, schedule.KindRepayment, schedule.KindDisbursement, schedule.KindDownPayment,
	}
	for i, p := range model.Periods() {
		assert.Equal(t, kinds[i], p.Kind(), "row %d", i)
	}

	totals := model.Totals()
	assertMoney(t, "1500", totals.Disbursed)
	assertMoney(t, "1200", totals.Unscheduled)
	assertMoney(t, "300", totals.Expected)
}

// =============================================================================
// ROWS
// =============================================================================

func TestModel_JSONRoundTrip(t *testing.T) {
	// GIVEN: A schedule with a down payment and a second tranche
	// WHEN: Encoding to JSON and decoding back
	// THEN: Rows and totals survive unchanged

	terms := withSecondTranche(baseTerms("12"), date(time.March, 1), "200")
	terms.DownPaymentEnabled = true
	terms.DownPaymentPercentage = decimal.NewFromInt(10)
	model := generate(t, schedule.StrategyCumulative, terms)

	raw, err := json.Marshal(model)
	require.NoError(t, err)

	var decoded schedule.Model
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, model.Len(), decoded.Len())
	assert.Equal(t, model.LoanTermInDays(), decoded.LoanTermInDays())
	assert.Equal(t, model.Currency(), decoded.Currency())
	assertMoney(t, model.Totals().Expected.String(), decoded.Totals().Expected)
	assertMoney(t, model.Totals().DownPayments.String(), decoded.Totals().DownPayments)

	before, after := model.Rows(), decoded.Rows()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Kind, after[i].Kind)
		assert.Equal(t, before[i].Date, after[i].Date)
		assert.True(t, before[i].Outstanding.Equal(after[i].Outstanding), "row %d outstanding", i)
	}
}

func TestModelFromRows_UnknownKind(t *testing.T) {
	_, err := schedule.ModelFromRows(usd, []schedule.Row{{Kind: "balloon", Date: "2025-01-15"}}, 0)
	assert.ErrorContains(t, err, "unknown period kind")
}
