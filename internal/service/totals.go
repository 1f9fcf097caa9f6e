package service

import (
	"closeout/internal/model"

	"github.com/shopspring/decimal"
)

// ExpectedCashCalculator computes the expected drawer balance for a session:
// opening float plus succeeded cash charges (payouts arrive as negative cash
// charges). Kept behind an interface so stores with custom drawer rules can
// swap it out.
type ExpectedCashCalculator interface {
	ExpectedCash(s *model.PosSession) int64
}

// DrawerCashCalculator is the standard drawer formula.
type DrawerCashCalculator struct{}

func (DrawerCashCalculator) ExpectedCash(s *model.PosSession) int64 {
	expected := s.OpeningBalance
	for i := range s.Charges {
		c := &s.Charges[i]
		if c.Status == model.ChargeSucceeded && c.PaymentMethod == model.MethodCash {
			expected += c.Amount
		}
	}
	return expected
}

// TotalsRecalculator brings a session's aggregate fields up to date after
// orphan linking. The charges relation must already be refreshed from storage.
type TotalsRecalculator struct {
	cash ExpectedCashCalculator
}

func NewTotalsRecalculator(cash ExpectedCashCalculator) *TotalsRecalculator {
	return &TotalsRecalculator{cash: cash}
}

// PreserveActualCash applies the snapshot priority rule: the previous cached
// report's actual_cash (major units on the wire, converted back with x100
// rounded) wins over the session row value. Some legacy sessions only ever
// had actual_cash inside the generated report blob; this must run BEFORE the
// cached report is discarded and BEFORE the cash difference is recalculated.
func (t *TotalsRecalculator) PreserveActualCash(s *model.PosSession) {
	rpt := s.ClosingData.Report
	if rpt == nil || rpt.ActualCash == nil {
		return
	}
	minor := decimal.NewFromFloat(*rpt.ActualCash).
		Mul(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	s.ActualCash = &minor
}

// Recalculate recomputes transaction_count and total_amount over succeeded
// linked charges, re-derives expected cash, and sets cash_difference iff
// actual_cash is present.
func (t *TotalsRecalculator) Recalculate(s *model.PosSession) {
	count := 0
	var total int64
	for i := range s.Charges {
		if s.Charges[i].Status == model.ChargeSucceeded {
			count++
			total += s.Charges[i].Amount
		}
	}
	s.TransactionCount = count
	s.TotalAmount = total
	s.ExpectedCash = t.cash.ExpectedCash(s)

	if s.ActualCash != nil {
		diff := *s.ActualCash - s.ExpectedCash
		s.CashDifference = &diff
	} else {
		s.CashDifference = nil
	}
}
