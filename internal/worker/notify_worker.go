package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"closeout/internal/infra"
	"closeout/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NotifyJobPayload carries everything the notify worker needs, so the
// worker never has to reload the session.
type NotifyJobPayload struct {
	SessionID        uuid.UUID  `json:"session_id"`
	SessionNumber    string     `json:"session_number"`
	StoreID          *uuid.UUID `json:"store_id,omitempty"`
	TransactionCount int        `json:"transaction_count"`
	TotalAmount      int64      `json:"total_amount"`
	ExpectedCash     int64      `json:"expected_cash"`
	ActualCash       *int64     `json:"actual_cash,omitempty"`
	CashDifference   *int64     `json:"cash_difference,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
}

// SessionNotifier implements repository.SessionObserver. It enqueues a
// notification job when a session reaches closed status. Reconciliation
// writes go through SaveSilent and never reach this path.
type SessionNotifier struct {
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

func NewSessionNotifier(dispatcher *Dispatcher, logger zerolog.Logger) *SessionNotifier {
	return &SessionNotifier{dispatcher: dispatcher, logger: logger}
}

func (n *SessionNotifier) SessionSaved(ctx context.Context, s *model.PosSession) {
	if s.Status != model.SessionClosed {
		return
	}
	payload := NotifyJobPayload{
		SessionID:        s.ID,
		SessionNumber:    s.SessionNumber,
		StoreID:          s.StoreID,
		TransactionCount: s.TransactionCount,
		TotalAmount:      s.TotalAmount,
		ExpectedCash:     s.ExpectedCash,
		ActualCash:       s.ActualCash,
		CashDifference:   s.CashDifference,
		ClosedAt:         s.ClosedAt,
	}
	if err := n.dispatcher.EnqueueSessionClosed(ctx, payload); err != nil {
		// Notification failure must never fail the close itself.
		n.logger.Error().Err(err).Str("session", s.SessionNumber).Msg("failed to enqueue closing notification")
	}
}

// NotifyWorker fans a session close out to email and webhook.
type NotifyWorker struct {
	mailer       *infra.Mailer
	webhook      *infra.WebhookClient
	summaryEmail string
	logger       zerolog.Logger
}

func NewNotifyWorker(mailer *infra.Mailer, webhook *infra.WebhookClient, summaryEmail string, logger zerolog.Logger) *NotifyWorker {
	return &NotifyWorker{mailer: mailer, webhook: webhook, summaryEmail: summaryEmail, logger: logger}
}

func (w *NotifyWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload NotifyJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("unmarshal notify payload: %w", err)
	}

	if w.mailer != nil && w.summaryEmail != "" {
		subject := fmt.Sprintf("Session %s closed", payload.SessionNumber)
		body := buildSummaryBody(payload)
		if err := w.mailer.SendClosingSummary(w.summaryEmail, subject, body); err != nil {
			w.logger.Error().Err(err).Str("session", payload.SessionNumber).Msg("closing summary email failed")
			// webhook still gets a chance below
		}
	}

	if w.webhook != nil && w.webhook.Enabled() {
		event := infra.SessionClosedPayload{
			SessionID:        payload.SessionID.String(),
			SessionNumber:    payload.SessionNumber,
			TransactionCount: payload.TransactionCount,
			TotalAmount:      payload.TotalAmount,
			ExpectedCash:     payload.ExpectedCash,
			ActualCash:       payload.ActualCash,
			CashDifference:   payload.CashDifference,
		}
		if payload.StoreID != nil {
			event.StoreID = payload.StoreID.String()
		}
		if payload.ClosedAt != nil {
			event.ClosedAt = payload.ClosedAt.UTC().Format(time.RFC3339)
		}
		if err := w.webhook.NotifySessionClosed(ctx, event); err != nil {
			return fmt.Errorf("webhook delivery for %s: %w", payload.SessionNumber, err)
		}
	}

	w.logger.Info().Str("session", payload.SessionNumber).Msg("closing notifications delivered")
	return nil
}

func buildSummaryBody(p NotifyJobPayload) string {
	body := fmt.Sprintf(
		"Session %s has been closed.\n\nTotal sales: %.2f\nExpected cash: %.2f\n",
		p.SessionNumber,
		float64(p.TotalAmount)/100,
		float64(p.ExpectedCash)/100,
	)
	if p.ActualCash != nil {
		body += fmt.Sprintf("Counted cash: %.2f\n", float64(*p.ActualCash)/100)
	}
	if p.CashDifference != nil {
		body += fmt.Sprintf("Difference: %.2f\n", float64(*p.CashDifference)/100)
	}
	return body
}
