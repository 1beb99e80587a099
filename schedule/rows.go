package schedule

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// ROWS - Flat encoding of a schedule for storage and transport
// =============================================================================

// Row is one period flattened into columns. Unused columns stay zero:
// Amount and Charges belong to disbursements and down payments, the rest
// to repayments.
type Row struct {
	Seq                  int             `json:"seq"`
	Kind                 PeriodKind      `json:"kind"`
	InstallmentNo        int             `json:"installment_no,omitempty"`
	PeriodNo             int             `json:"period_no,omitempty"`
	From                 string          `json:"from,omitempty"`
	Date                 string          `json:"date"`
	Amount               decimal.Decimal `json:"amount"`
	Charges              decimal.Decimal `json:"charges"`
	Principal            decimal.Decimal `json:"principal"`
	Interest             decimal.Decimal `json:"interest"`
	Fees                 decimal.Decimal `json:"fees"`
	Penalties            decimal.Decimal `json:"penalties"`
	Outstanding          decimal.Decimal `json:"outstanding"`
	RecalculatedInterest bool            `json:"recalculated_interest,omitempty"`
}

// Rows flattens the schedule in its canonical order.
func (m *Model) Rows() []Row {
	out := make([]Row, 0, len(m.periods))
	for i, p := range m.periods {
		r := Row{Seq: i, Kind: p.Kind(), Date: p.Date().String()}
		switch v := p.(type) {
		case Disbursement:
			r.Amount = v.Amount.Amount
			r.Charges = v.Charges.Amount
		case DownPayment:
			r.InstallmentNo = v.InstallmentNo
			r.Amount = v.Amount.Amount
			r.Outstanding = v.BalanceAfter.Amount
		case Repayment:
			r.InstallmentNo = v.InstallmentNo
			r.PeriodNo = v.PeriodNo
			r.From = v.From.String()
			r.Principal = v.Principal.Amount
			r.Interest = v.Interest.Amount
			r.Fees = v.Fees.Amount
			r.Penalties = v.Penalties.Amount
			r.Outstanding = v.Outstanding.Amount
			r.RecalculatedInterest = v.RecalculatedInterest
		}
		out = append(out, r)
	}
	return out
}

// ModelFromRows rebuilds a schedule from its flat rows.
func ModelFromRows(currency generic.Currency, rows []Row, loanTermInDays int) (*Model, error) {
	money := func(d decimal.Decimal) generic.Money { return generic.Money{Amount: d, Currency: currency} }
	periods := make([]Period, 0, len(rows))
	for _, r := range rows {
		date, err := generic.ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r.Seq, err)
		}
		switch r.Kind {
		case KindDisbursement:
			periods = append(periods, Disbursement{On: date, Amount: money(r.Amount), Charges: money(r.Charges)})
		case KindDownPayment:
			periods = append(periods, DownPayment{
				InstallmentNo: r.InstallmentNo, On: date,
				Amount: money(r.Amount), BalanceAfter: money(r.Outstanding),
			})
		case KindRepayment:
			from, err := generic.ParseDate(r.From)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", r.Seq, err)
			}
			periods = append(periods, Repayment{
				InstallmentNo: r.InstallmentNo, PeriodNo: r.PeriodNo, From: from, Due: date,
				Principal: money(r.Principal), Interest: money(r.Interest),
				Fees: money(r.Fees), Penalties: money(r.Penalties), Outstanding: money(r.Outstanding),
				RecalculatedInterest: r.RecalculatedInterest,
			})
		default:
			return nil, fmt.Errorf("row %d: unknown period kind %q", r.Seq, r.Kind)
		}
	}
	return NewModel(currency, periods, loanTermInDays), nil
}

// modelJSON is the document form of a schedule.
type modelJSON struct {
	Currency       string `json:"currency"`
	DecimalPlaces  int32  `json:"decimal_places"`
	LoanTermInDays int    `json:"loan_term_in_days"`
	Rows           []Row  `json:"rows"`
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelJSON{
		Currency:       m.currency.Code,
		DecimalPlaces:  m.currency.DecimalPlaces,
		LoanTermInDays: m.loanTermInDays,
		Rows:           m.Rows(),
	})
}

func (m *Model) UnmarshalJSON(data []byte) error {
	var doc modelJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	rebuilt, err := ModelFromRows(generic.Currency{Code: doc.Currency, DecimalPlaces: doc.DecimalPlaces}, doc.Rows, doc.LoanTermInDays)
	if err != nil {
		return err
	}
	*m = *rebuilt
	return nil
}
