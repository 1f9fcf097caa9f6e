package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Charge statuses as delivered by the payment platform webhooks.
const (
	ChargeSucceeded = "succeeded"
	ChargePending   = "pending"
	ChargeFailed    = "failed"
)

// Payment methods recognised by the drawer arithmetic and report breakdowns.
const (
	MethodCash   = "cash"
	MethodCard   = "card"
	MethodMobile = "mobile"
)

// Charge is a payment transaction owned by the payment subsystem. Refunds and
// cash payouts arrive as charges with a negative amount. Reconciliation only
// reads charges and conditionally sets PosSessionID.
type Charge struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	StripeAccountID string    `gorm:"type:varchar(64);index;not null"`
	Status          string    `gorm:"type:varchar(20);index;not null"`
	// Amount is in minor currency units; negative for refunds/payouts.
	Amount        int64  `gorm:"not null"`
	Currency      string `gorm:"type:varchar(3);not null"`
	PaymentMethod string `gorm:"type:varchar(20);not null;default:'card'"`
	// TaxRate is the VAT percentage as a string key ("25", "15", "0").
	TaxRate      string         `gorm:"type:varchar(8);not null;default:'0'"`
	TaxAmount    int64          `gorm:"not null;default:0"`
	PosSessionID *uuid.UUID     `gorm:"type:uuid;index"`
	Metadata     ChargeMetadata `gorm:"type:jsonb"`
	PaidAt       *time.Time
	CreatedAt    time.Time

	Receipts []Receipt `gorm:"foreignKey:ChargeID"`
}

// SettledAt is the time used for session-window matching: PaidAt when the
// platform reported settlement, CreatedAt otherwise.
func (c *Charge) SettledAt() time.Time {
	if c.PaidAt != nil {
		return *c.PaidAt
	}
	return c.CreatedAt
}

// ChargeMetadata is the charge's free-form key/value blob. The integrations
// that stamp pos_session_number are modelled with named fields; everything
// else round-trips untouched through Extra.
type ChargeMetadata struct {
	PosSessionNumber *string
	Source           string
	TerminalID       string
	Extra            map[string]json.RawMessage
}

func (m ChargeMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.PosSessionNumber != nil {
		setRaw(out, "pos_session_number", *m.PosSessionNumber)
	}
	if m.Source != "" {
		setRaw(out, "source", m.Source)
	}
	if m.TerminalID != "" {
		setRaw(out, "terminal_id", m.TerminalID)
	}
	return json.Marshal(out)
}

func (m *ChargeMetadata) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["pos_session_number"]; ok {
		if err := json.Unmarshal(v, &m.PosSessionNumber); err != nil {
			return err
		}
		delete(raw, "pos_session_number")
	}
	if v, ok := raw["source"]; ok {
		if err := json.Unmarshal(v, &m.Source); err != nil {
			return err
		}
		delete(raw, "source")
	}
	if v, ok := raw["terminal_id"]; ok {
		if err := json.Unmarshal(v, &m.TerminalID); err != nil {
			return err
		}
		delete(raw, "terminal_id")
	}
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

func (m ChargeMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *ChargeMetadata) Scan(src any) error { return jsonbScan(m, src) }
