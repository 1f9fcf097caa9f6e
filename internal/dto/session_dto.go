package dto

import "closeout/internal/model"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	StoreID        string `json:"store_id"        validate:"required,uuid"`
	DeviceID       string `json:"device_id"       validate:"required,uuid"`
	OpeningBalance int64  `json:"opening_balance" validate:"min=0"`
}

type CloseSessionRequest struct {
	// ActualCash is the operator-counted drawer amount in minor units.
	ActualCash  int64   `json:"actual_cash"  validate:"min=0"`
	ClosingNote *string `json:"closing_note"`
}

type SessionFilter struct {
	StoreID string `form:"store_id" validate:"omitempty,uuid"`
	Status  string `form:"status"   validate:"omitempty,oneof=open closed"`
	Page    int    `form:"page"`
	Limit   int    `form:"limit"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SessionResponse struct {
	ID               string  `json:"id"`
	SessionNumber    string  `json:"session_number"`
	StoreID          *string `json:"store_id"`
	DeviceID         *string `json:"device_id"`
	Status           string  `json:"status"`
	OpenedAt         string  `json:"opened_at"`
	ClosedAt         *string `json:"closed_at"`
	OpeningBalance   int64   `json:"opening_balance"`
	TransactionCount int     `json:"transaction_count"`
	TotalAmount      int64   `json:"total_amount"`
	ExpectedCash     int64   `json:"expected_cash"`
	ActualCash       *int64  `json:"actual_cash"`
	CashDifference   *int64  `json:"cash_difference"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

type ReportResponse struct {
	SessionID string        `json:"session_id"`
	Report    *model.Report `json:"report"`
}
