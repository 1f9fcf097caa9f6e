package model

import (
	"time"

	"github.com/google/uuid"
)

// Report kinds. X is the interim report for an open session, Z the legally
// significant closing report expected to be stable and re-derivable.
const (
	ReportKindX = "x"
	ReportKindZ = "z"
)

// MethodTotal aggregates succeeded charges for one payment method.
type MethodTotal struct {
	Count  int   `json:"count"`
	Amount int64 `json:"amount"`
}

// VATLine is one row of the VAT breakdown, all amounts in minor units.
type VATLine struct {
	Rate  string `json:"rate"`
	Net   int64  `json:"net"`
	VAT   int64  `json:"vat"`
	Gross int64  `json:"gross"`
}

// ReportLine is one itemized transaction or refund.
type ReportLine struct {
	ChargeID uuid.UUID `json:"charge_id"`
	Amount   int64     `json:"amount"`
	Method   string    `json:"method"`
	PaidAt   time.Time `json:"paid_at"`
}

// Report is the generated X/Z report value object, cached into the session's
// closing_data blob. All amounts are minor units except ActualCash, which is
// serialized in major units; the preservation logic in the reconciliation
// core depends on that wire format and converts back with a x100 round.
type Report struct {
	Kind              string                 `json:"kind"`
	SessionNumber     string                 `json:"session_number"`
	GeneratedAt       time.Time              `json:"generated_at"`
	TransactionsCount int                    `json:"transactions_count"`
	RefundsCount      int                    `json:"refunds_count"`
	TotalAmount       int64                  `json:"total_amount"`
	NetAmount         int64                  `json:"net_amount"`
	VATAmount         int64                  `json:"vat_amount"`
	OpeningBalance    int64                  `json:"opening_balance"`
	ExpectedCash      int64                  `json:"expected_cash"`
	ActualCash        *float64               `json:"actual_cash,omitempty"`
	CashDifference    *int64                 `json:"cash_difference,omitempty"`
	PaymentMethods    map[string]MethodTotal `json:"payment_methods"`
	VATBreakdown      []VATLine              `json:"vat_breakdown"`
	Transactions      []ReportLine           `json:"transactions"`
	Refunds           []ReportLine           `json:"refunds,omitempty"`
}
