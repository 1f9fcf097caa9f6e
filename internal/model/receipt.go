package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Receipt is a printed (or printable) document tied to a charge. It may carry
// the session number in its data blob even when the charge itself was never
// stamped with one.
type Receipt struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChargeID     *uuid.UUID  `gorm:"type:uuid;index"`
	PosSessionID *uuid.UUID  `gorm:"type:uuid;index"`
	Data         ReceiptData `gorm:"type:jsonb"`
	CreatedAt    time.Time

	Charge *Charge `gorm:"foreignKey:ChargeID"`
}

// ReceiptData is the receipt's free-form blob.
type ReceiptData struct {
	SessionNumber *string
	ReceiptNumber string
	Printed       bool
	Extra         map[string]json.RawMessage
}

func (d ReceiptData) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Extra)+3)
	for k, v := range d.Extra {
		out[k] = v
	}
	if d.SessionNumber != nil {
		setRaw(out, "pos_session_number", *d.SessionNumber)
	}
	if d.ReceiptNumber != "" {
		setRaw(out, "receipt_number", d.ReceiptNumber)
	}
	if d.Printed {
		setRaw(out, "printed", d.Printed)
	}
	return json.Marshal(out)
}

func (d *ReceiptData) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["pos_session_number"]; ok {
		if err := json.Unmarshal(v, &d.SessionNumber); err != nil {
			return err
		}
		delete(raw, "pos_session_number")
	}
	if v, ok := raw["receipt_number"]; ok {
		if err := json.Unmarshal(v, &d.ReceiptNumber); err != nil {
			return err
		}
		delete(raw, "receipt_number")
	}
	if v, ok := raw["printed"]; ok {
		if err := json.Unmarshal(v, &d.Printed); err != nil {
			return err
		}
		delete(raw, "printed")
	}
	if len(raw) > 0 {
		d.Extra = raw
	}
	return nil
}

func (d ReceiptData) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	return string(b), err
}

func (d *ReceiptData) Scan(src any) error { return jsonbScan(d, src) }
