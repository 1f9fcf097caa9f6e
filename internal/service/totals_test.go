package service_test

import (
	"testing"

	"closeout/internal/model"
	"closeout/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }

func TestRecalculateCountsOnlySucceededCharges(t *testing.T) {
	s := &model.PosSession{
		OpeningBalance: 5000,
		Charges: []model.Charge{
			{Status: model.ChargeSucceeded, PaymentMethod: model.MethodCash, Amount: 1000},
			{Status: model.ChargePending, PaymentMethod: model.MethodCash, Amount: 500},
			{Status: model.ChargeFailed, PaymentMethod: model.MethodCard, Amount: 200},
		},
	}

	service.NewTotalsRecalculator(service.DrawerCashCalculator{}).Recalculate(s)

	assert.Equal(t, 1, s.TransactionCount)
	assert.Equal(t, int64(1000), s.TotalAmount)
	assert.Equal(t, int64(6000), s.ExpectedCash)
}

func TestRecalculateExpectedCashIgnoresCardCharges(t *testing.T) {
	s := &model.PosSession{
		OpeningBalance: 1000,
		Charges: []model.Charge{
			{Status: model.ChargeSucceeded, PaymentMethod: model.MethodCash, Amount: 2000},
			{Status: model.ChargeSucceeded, PaymentMethod: model.MethodCard, Amount: 9000},
			// Cash payout arrives as a negative cash charge.
			{Status: model.ChargeSucceeded, PaymentMethod: model.MethodCash, Amount: -500},
		},
	}

	service.NewTotalsRecalculator(service.DrawerCashCalculator{}).Recalculate(s)

	assert.Equal(t, int64(2500), s.ExpectedCash)
	assert.Equal(t, int64(10500), s.TotalAmount)
}

func TestRecalculateCashDifference(t *testing.T) {
	totals := service.NewTotalsRecalculator(service.DrawerCashCalculator{})

	counted := &model.PosSession{
		OpeningBalance: 1000,
		ActualCash:     int64Ptr(2900),
		Charges: []model.Charge{
			{Status: model.ChargeSucceeded, PaymentMethod: model.MethodCash, Amount: 2000},
		},
	}
	totals.Recalculate(counted)
	require.NotNil(t, counted.CashDifference)
	assert.Equal(t, int64(-100), *counted.CashDifference)

	uncounted := &model.PosSession{OpeningBalance: 1000, CashDifference: int64Ptr(42)}
	totals.Recalculate(uncounted)
	assert.Nil(t, uncounted.CashDifference)
}

func TestPreserveActualCashFromCachedReport(t *testing.T) {
	totals := service.NewTotalsRecalculator(service.DrawerCashCalculator{})

	// The cached report carries major units; the session row wants minor.
	s := &model.PosSession{
		ClosingData: model.ClosingData{
			Report: &model.Report{ActualCash: float64Ptr(150.00)},
		},
	}
	totals.PreserveActualCash(s)
	require.NotNil(t, s.ActualCash)
	assert.Equal(t, int64(15000), *s.ActualCash)

	// The report value wins over the row value.
	s.ActualCash = int64Ptr(99)
	totals.PreserveActualCash(s)
	assert.Equal(t, int64(15000), *s.ActualCash)
}

func TestPreserveActualCashNoReportLeavesRowUntouched(t *testing.T) {
	totals := service.NewTotalsRecalculator(service.DrawerCashCalculator{})

	noReport := &model.PosSession{ActualCash: int64Ptr(1234)}
	totals.PreserveActualCash(noReport)
	assert.Equal(t, int64(1234), *noReport.ActualCash)

	reportWithoutCash := &model.PosSession{
		ActualCash:  int64Ptr(1234),
		ClosingData: model.ClosingData{Report: &model.Report{}},
	}
	totals.PreserveActualCash(reportWithoutCash)
	assert.Equal(t, int64(1234), *reportWithoutCash.ActualCash)
}

func TestPreserveActualCashRoundsFloatNoise(t *testing.T) {
	totals := service.NewTotalsRecalculator(service.DrawerCashCalculator{})

	s := &model.PosSession{
		ClosingData: model.ClosingData{
			Report: &model.Report{ActualCash: float64Ptr(19.99)},
		},
	}
	totals.PreserveActualCash(s)
	require.NotNil(t, s.ActualCash)
	assert.Equal(t, int64(1999), *s.ActualCash)
}
