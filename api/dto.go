/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Money is rendered as
  fixed-point strings at the currency's decimal places, never as floats.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Schedules:
    GenerateRequest, PrepaymentRequest, ScheduleDTO, RecordDTO, PeriodDTO,
    TotalsDTO, OutstandingDTO

  Presets:
    PresetDTO

  Holidays:
    HolidayDTO, CreateHolidayRequest

VALIDATION:
  Validation is done in handlers and the factory, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/loan.go: LoanJSON type
*/
package api

import (
	"time"

	"github.com/warp/schedule-engine/factory"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/schedule"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GenerateRequest asks for a schedule. LoanRef is required when persisting.
type GenerateRequest struct {
	LoanRef  string           `json:"loan_ref,omitempty"`
	Strategy string           `json:"strategy,omitempty"` // cumulative (default), progressive
	Terms    factory.LoanJSON `json:"terms"`
}

// PrepaymentRequest asks for the amount closing a loan on a date.
type PrepaymentRequest struct {
	Strategy string           `json:"strategy,omitempty"`
	OnDate   string           `json:"on_date"`
	Terms    factory.LoanJSON `json:"terms"`
}

type CreateHolidayRequest struct {
	OfficeID  string `json:"office_id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// PeriodDTO is one schedule row.
type PeriodDTO struct {
	Kind                 string `json:"kind"`
	InstallmentNo        int    `json:"installment_no,omitempty"`
	PeriodNo             int    `json:"period_no,omitempty"`
	From                 string `json:"from,omitempty"`
	Date                 string `json:"date"`
	Amount               string `json:"amount,omitempty"`
	Charges              string `json:"charges,omitempty"`
	Principal            string `json:"principal,omitempty"`
	Interest             string `json:"interest,omitempty"`
	Fees                 string `json:"fees,omitempty"`
	Penalties            string `json:"penalties,omitempty"`
	Total                string `json:"total,omitempty"`
	Outstanding          string `json:"outstanding,omitempty"`
	RecalculatedInterest bool   `json:"recalculated_interest,omitempty"`
}

type TotalsDTO struct {
	Disbursed           string `json:"disbursed"`
	DisbursementCharges string `json:"disbursement_charges"`
	Principal           string `json:"principal"`
	DownPayments        string `json:"down_payments"`
	Interest            string `json:"interest"`
	Fees                string `json:"fees"`
	Penalties           string `json:"penalties"`
	Expected            string `json:"expected"`
	Unscheduled         string `json:"unscheduled"`
}

// ScheduleDTO is a generated schedule.
type ScheduleDTO struct {
	Currency       string      `json:"currency"`
	LoanTermInDays int         `json:"loan_term_in_days"`
	MaturityDate   string      `json:"maturity_date,omitempty"`
	Periods        []PeriodDTO `json:"periods"`
	Totals         TotalsDTO   `json:"totals"`
}

// RecordDTO is a stored schedule version.
type RecordDTO struct {
	ID        string      `json:"id"`
	LoanRef   string      `json:"loan_ref"`
	Version   int         `json:"version"`
	Strategy  string      `json:"strategy"`
	OfficeID  string      `json:"office_id,omitempty"`
	Stale     bool        `json:"stale"`
	CreatedAt time.Time   `json:"created_at"`
	Schedule  ScheduleDTO `json:"schedule"`
}

type OutstandingDTO struct {
	OnDate    string `json:"on_date"`
	Principal string `json:"principal"`
	Interest  string `json:"interest"`
	Fees      string `json:"fees"`
	Penalties string `json:"penalties"`
	Total     string `json:"total"`
}

type PresetDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Strategy    string `json:"strategy"`
}

type HolidayDTO struct {
	ID        string `json:"id"`
	OfficeID  string `json:"office_id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toScheduleDTO(m *schedule.Model) ScheduleDTO {
	t := m.Totals()
	dto := ScheduleDTO{
		Currency:       m.Currency().Code,
		LoanTermInDays: m.LoanTermInDays(),
		Periods:        make([]PeriodDTO, 0, m.Len()),
		Totals: TotalsDTO{
			Disbursed:           t.Disbursed.String(),
			DisbursementCharges: t.DisbursementCharges.String(),
			Principal:           t.Principal.String(),
			DownPayments:        t.DownPayments.String(),
			Interest:            t.Interest.String(),
			Fees:                t.Fees.String(),
			Penalties:           t.Penalties.String(),
			Expected:            t.Expected.String(),
			Unscheduled:         t.Unscheduled.String(),
		},
	}
	if maturity := m.MaturityDate(); !maturity.IsZero() {
		dto.MaturityDate = maturity.String()
	}
	for _, p := range m.Periods() {
		dto.Periods = append(dto.Periods, toPeriodDTO(p))
	}
	return dto
}

func toPeriodDTO(p schedule.Period) PeriodDTO {
	dto := PeriodDTO{Kind: string(p.Kind()), Date: p.Date().String()}
	switch v := p.(type) {
	case schedule.Disbursement:
		dto.Amount = v.Amount.String()
		dto.Charges = v.Charges.String()
	case schedule.DownPayment:
		dto.InstallmentNo = v.InstallmentNo
		dto.Amount = v.Amount.String()
		dto.Outstanding = v.BalanceAfter.String()
	case schedule.Repayment:
		dto.InstallmentNo = v.InstallmentNo
		dto.PeriodNo = v.PeriodNo
		dto.From = v.From.String()
		dto.Principal = v.Principal.String()
		dto.Interest = v.Interest.String()
		dto.Fees = v.Fees.String()
		dto.Penalties = v.Penalties.String()
		dto.Total = v.Total().String()
		dto.Outstanding = v.Outstanding.String()
		dto.RecalculatedInterest = v.RecalculatedInterest
	}
	return dto
}

func toRecordDTO(rec *schedule.Record) RecordDTO {
	return RecordDTO{
		ID:        rec.ID.String(),
		LoanRef:   rec.LoanRef,
		Version:   rec.Version,
		Strategy:  string(rec.Strategy),
		OfficeID:  rec.OfficeID,
		Stale:     rec.Stale,
		CreatedAt: rec.CreatedAt,
		Schedule:  toScheduleDTO(rec.Schedule),
	}
}

func toOutstandingDTO(o *schedule.OutstandingAmounts) OutstandingDTO {
	return OutstandingDTO{
		OnDate:    o.OnDate.String(),
		Principal: o.Principal.String(),
		Interest:  o.Interest.String(),
		Fees:      o.Fees.String(),
		Penalties: o.Penalties.String(),
		Total:     o.Total().String(),
	}
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		OfficeID:  h.OfficeID,
		Date:      h.Date.String(),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}
