package dto

import (
	"time"

	"github.com/google/uuid"
)

// ─── Batch regeneration ──────────────────────────────────────────────────────

// RegenerateRequest is the HTTP/CLI surface for a batch run. Dates are
// inclusive closed-at bounds in YYYY-MM-DD.
type RegenerateRequest struct {
	StoreID         string `json:"store_id"          validate:"omitempty,uuid"`
	FromDate        string `json:"from_date"         validate:"omitempty,datetime=2006-01-02"`
	ToDate          string `json:"to_date"           validate:"omitempty,datetime=2006-01-02"`
	Limit           int    `json:"limit"             validate:"min=0"`
	FindMissingData *bool  `json:"find_missing_data"`
	DryRun          bool   `json:"dry_run"`
	Reason          string `json:"reason"`
}

// RegenerateOptions is the parsed form consumed by the regeneration service
// and serialized onto the async worker queue.
type RegenerateOptions struct {
	StoreID         *uuid.UUID `json:"store_id,omitempty"`
	From            *time.Time `json:"from,omitempty"`
	To              *time.Time `json:"to,omitempty"`
	Limit           int        `json:"limit,omitempty"`
	FindMissingData bool       `json:"find_missing_data"`
	DryRun          bool       `json:"dry_run"`
	Reason          string     `json:"reason,omitempty"`
}

// Options converts the request, applying the find_missing_data=true default.
func (r RegenerateRequest) Options() (RegenerateOptions, error) {
	opts := RegenerateOptions{
		Limit:           r.Limit,
		FindMissingData: true,
		DryRun:          r.DryRun,
		Reason:          r.Reason,
	}
	if r.FindMissingData != nil {
		opts.FindMissingData = *r.FindMissingData
	}
	if r.StoreID != "" {
		id, err := uuid.Parse(r.StoreID)
		if err != nil {
			return opts, err
		}
		opts.StoreID = &id
	}
	if r.FromDate != "" {
		t, err := time.Parse("2006-01-02", r.FromDate)
		if err != nil {
			return opts, err
		}
		opts.From = &t
	}
	if r.ToDate != "" {
		t, err := time.Parse("2006-01-02", r.ToDate)
		if err != nil {
			return opts, err
		}
		// Inclusive upper bound: extend to end of day.
		end := t.Add(24*time.Hour - time.Nanosecond)
		opts.To = &end
	}
	return opts, nil
}

// RegenerateStats is the batch result structure. A run with a non-empty
// Errors list is still a successful call; callers inspect Errors to detect
// partial failure.
type RegenerateStats struct {
	TotalSessions int      `json:"total_sessions"`
	Processed     int      `json:"processed"`
	Regenerated   int      `json:"regenerated"`
	ChargesFound  int      `json:"charges_found"`
	ReceiptsFound int      `json:"receipts_found"`
	EventsFound   int      `json:"events_found"`
	Errors        []string `json:"errors"`
}

// ─── Single-session regeneration ─────────────────────────────────────────────

type RegenerateSessionRequest struct {
	FindMissingData *bool  `json:"find_missing_data"`
	Reason          string `json:"reason"`
}

type RegenerateSessionResult struct {
	ChargesFound  int     `json:"charges_found"`
	ReceiptsFound int     `json:"receipts_found"`
	EventsFound   int     `json:"events_found"`
	Success       bool    `json:"success"`
	Error         *string `json:"error"`
}
