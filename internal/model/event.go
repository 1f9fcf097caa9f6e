package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an audit-log entry emitted by POS hardware or the register app
// (drawer opened, report printed, charge captured). Events referencing a
// charge are a secondary signal for session attribution.
type Event struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Type         string     `gorm:"type:varchar(40);index;not null"`
	DeviceID     *uuid.UUID `gorm:"type:uuid;index"`
	ChargeID     *uuid.UUID `gorm:"type:uuid;index"`
	PosSessionID *uuid.UUID `gorm:"type:uuid;index"`
	Data         EventData  `gorm:"type:jsonb"`
	OccurredAt   time.Time  `gorm:"index;not null"`
	CreatedAt    time.Time
}

// EventData is the event's free-form blob.
type EventData struct {
	SessionNumber *string
	Note          string
	Extra         map[string]json.RawMessage
}

func (d EventData) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	if d.SessionNumber != nil {
		setRaw(out, "pos_session_number", *d.SessionNumber)
	}
	if d.Note != "" {
		setRaw(out, "note", d.Note)
	}
	return json.Marshal(out)
}

func (d *EventData) UnmarshalJSON(data []byte) error {
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
	if v, ok := raw["note"]; ok {
		if err := json.Unmarshal(v, &d.Note); err != nil {
			return err
		}
		delete(raw, "note")
	}
	if len(raw) > 0 {
		d.Extra = raw
	}
	return nil
}

func (d EventData) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	return string(b), err
}

func (d *EventData) Scan(src any) error { return jsonbScan(d, src) }
