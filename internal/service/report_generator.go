package service

import (
	"sort"
	"time"

	"closeout/internal/model"

	"github.com/shopspring/decimal"
)

// ReportGenerator produces the X/Z report value object from a session's
// current state. Pure apart from the generation timestamp: calling it twice
// on the same session yields value-equal reports modulo GeneratedAt.
type ReportGenerator interface {
	GenerateXReport(s *model.PosSession) *model.Report
	GenerateZReport(s *model.PosSession) *model.Report
}

type reportGenerator struct {
	now func() time.Time
}

func NewReportGenerator() ReportGenerator {
	return &reportGenerator{now: func() time.Time { return time.Now().UTC() }}
}

func (g *reportGenerator) GenerateXReport(s *model.PosSession) *model.Report {
	return g.generate(s, model.ReportKindX)
}

func (g *reportGenerator) GenerateZReport(s *model.PosSession) *model.Report {
	return g.generate(s, model.ReportKindZ)
}

func (g *reportGenerator) generate(s *model.PosSession, kind string) *model.Report {
	rpt := &model.Report{
		Kind:           kind,
		SessionNumber:  s.SessionNumber,
		GeneratedAt:    g.now(),
		OpeningBalance: s.OpeningBalance,
		ExpectedCash:   s.ExpectedCash,
		PaymentMethods: map[string]model.MethodTotal{},
	}

	vatByRate := map[string]*model.VATLine{}
	for i := range s.Charges {
		c := &s.Charges[i]
		if c.Status != model.ChargeSucceeded {
			continue
		}

		line := model.ReportLine{
			ChargeID: c.ID,
			Amount:   c.Amount,
			Method:   c.PaymentMethod,
			PaidAt:   c.SettledAt(),
		}
		if c.Amount < 0 {
			rpt.RefundsCount++
			rpt.Refunds = append(rpt.Refunds, line)
		} else {
			rpt.TransactionsCount++
			rpt.Transactions = append(rpt.Transactions, line)
		}
		rpt.TotalAmount += c.Amount

		mt := rpt.PaymentMethods[c.PaymentMethod]
		mt.Count++
		mt.Amount += c.Amount
		rpt.PaymentMethods[c.PaymentMethod] = mt

		vl, ok := vatByRate[c.TaxRate]
		if !ok {
			vl = &model.VATLine{Rate: c.TaxRate}
			vatByRate[c.TaxRate] = vl
		}
		vl.Gross += c.Amount
		vl.VAT += vatAmount(c)
	}

	rates := make([]string, 0, len(vatByRate))
	for rate := range vatByRate {
		rates = append(rates, rate)
	}
	sort.Strings(rates)
	for _, rate := range rates {
		vl := vatByRate[rate]
		vl.Net = vl.Gross - vl.VAT
		rpt.VATBreakdown = append(rpt.VATBreakdown, *vl)
		rpt.VATAmount += vl.VAT
	}
	rpt.NetAmount = rpt.TotalAmount - rpt.VATAmount

	// Cash snapshot fields are echoed from the session; actual_cash travels
	// in major units on the report wire format.
	if s.ActualCash != nil {
		major, _ := decimal.NewFromInt(*s.ActualCash).
			Div(decimal.NewFromInt(100)).
			Float64()
		rpt.ActualCash = &major
	}
	if s.CashDifference != nil {
		diff := *s.CashDifference
		rpt.CashDifference = &diff
	}
	return rpt
}

// vatAmount uses the charge's reported tax amount when present, deriving it
// from the gross and the rate otherwise (gross - gross / (1 + rate/100)).
func vatAmount(c *model.Charge) int64 {
	if c.TaxAmount != 0 {
		return c.TaxAmount
	}
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil || rate.IsZero() {
		return 0
	}
	gross := decimal.NewFromInt(c.Amount)
	divisor := decimal.NewFromInt(1).Add(rate.Div(decimal.NewFromInt(100)))
	net := gross.Div(divisor).Round(0)
	return gross.Sub(net).IntPart()
}
