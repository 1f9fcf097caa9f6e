package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session statuses.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// PosSession is one register-open-to-close period.
// Status: "open" | "closed". An open session has no ClosedAt.
// TransactionCount / TotalAmount reflect exactly the linked charges with
// status succeeded. CashDifference is set iff ActualCash is set.
// ActualCash is an operator-counted snapshot and is never recomputed;
// regeneration must not lose it (see ClosingData.Report preservation).
type PosSession struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionNumber string     `gorm:"type:varchar(32);uniqueIndex;not null"`
	StoreID       *uuid.UUID `gorm:"type:uuid;index"`
	DeviceID      *uuid.UUID `gorm:"type:uuid;index"`
	OperatorID    *uuid.UUID `gorm:"type:uuid"`
	Status        string     `gorm:"type:varchar(10);index;not null;default:'open'"`
	OpenedAt      time.Time  `gorm:"not null"`
	ClosedAt      *time.Time `gorm:"index"`
	// Amounts are minor currency units.
	OpeningBalance   int64 `gorm:"not null;default:0"`
	TransactionCount int   `gorm:"not null;default:0"`
	TotalAmount      int64 `gorm:"not null;default:0"`
	ExpectedCash     int64 `gorm:"not null;default:0"`
	ActualCash       *int64
	CashDifference   *int64
	ClosingData      ClosingData `gorm:"type:jsonb"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Store    *Store    `gorm:"foreignKey:StoreID"`
	Device   *Device   `gorm:"foreignKey:DeviceID"`
	Charges  []Charge  `gorm:"foreignKey:PosSessionID"`
	Receipts []Receipt `gorm:"foreignKey:PosSessionID"`
	Events   []Event   `gorm:"foreignKey:PosSessionID"`
}

// Window returns the matching window for orphan attribution:
// [OpenedAt, ClosedAt] for closed sessions, [OpenedAt, now] while open.
func (s *PosSession) Window() (time.Time, time.Time) {
	if s.ClosedAt != nil {
		return s.OpenedAt, *s.ClosedAt
	}
	return s.OpenedAt, time.Now().UTC()
}

// RegenerationDiff records the before/after delta of a single-session
// regeneration for audit purposes.
type RegenerationDiff struct {
	TransactionsBefore int   `json:"transactions_before"`
	TransactionsAfter  int   `json:"transactions_after"`
	TotalBefore        int64 `json:"total_before"`
	TotalAfter         int64 `json:"total_after"`
}

// ClosingData is the session's closing blob: the cached report plus the
// regeneration audit trail. Report removal forces the next generation;
// all other fields survive regeneration. Unknown vendor keys round-trip
// through Extra.
type ClosingData struct {
	Report             *Report
	OriginalReport     *Report
	RegeneratedAt      *time.Time
	RegenerationReason *string
	RegenerationDiff   *RegenerationDiff
	ClosingNote        *string
	Extra              map[string]json.RawMessage
}

func (d ClosingData) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Extra)+6)
	for k, v := range d.Extra {
		out[k] = v
	}
	if d.Report != nil {
		setRaw(out, "report", d.Report)
	}
	if d.OriginalReport != nil {
		setRaw(out, "original_report", d.OriginalReport)
	}
	if d.RegeneratedAt != nil {
		setRaw(out, "regenerated_at", d.RegeneratedAt)
	}
	if d.RegenerationReason != nil {
		setRaw(out, "regeneration_reason", *d.RegenerationReason)
	}
	if d.RegenerationDiff != nil {
		setRaw(out, "regeneration_diff", d.RegenerationDiff)
	}
	if d.ClosingNote != nil {
		setRaw(out, "closing_note", *d.ClosingNote)
	}
	return json.Marshal(out)
}

func (d *ClosingData) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := []struct {
		key  string
		dest any
	}{
		{"report", &d.Report},
		{"original_report", &d.OriginalReport},
		{"regenerated_at", &d.RegeneratedAt},
		{"regeneration_reason", &d.RegenerationReason},
		{"regeneration_diff", &d.RegenerationDiff},
		{"closing_note", &d.ClosingNote},
	}
	for _, f := range known {
		if v, ok := raw[f.key]; ok {
			if err := json.Unmarshal(v, f.dest); err != nil {
				return err
			}
			delete(raw, f.key)
		}
	}
	if len(raw) > 0 {
		d.Extra = raw
	}
	return nil
}

func (d ClosingData) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	return string(b), err
}

func (d *ClosingData) Scan(src any) error { return jsonbScan(d, src) }
