package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"closeout/internal/dto"
	"closeout/internal/model"
	"closeout/internal/repository"

	"github.com/google/uuid"
)

type SessionService interface {
	Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionResponse, error)
	// Close records the operator's blind cash count, computes the cash
	// difference, caches the Z-report and fans out closing notifications.
	Close(ctx context.Context, id uuid.UUID, req dto.CloseSessionRequest) (*dto.SessionResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.SessionResponse, error)
	List(ctx context.Context, filter dto.SessionFilter) (*dto.SessionListResponse, error)
	// Report returns the cached Z-report for a closed session, or a fresh
	// interim X-report for an open one.
	Report(ctx context.Context, id uuid.UUID) (*dto.ReportResponse, error)
}

type sessionService struct {
	repo    repository.SessionRepository
	stores  repository.StoreRepository
	totals  *TotalsRecalculator
	reports ReportGenerator
}

func NewSessionService(
	repo repository.SessionRepository,
	stores repository.StoreRepository,
	totals *TotalsRecalculator,
	reports ReportGenerator,
) SessionService {
	return &sessionService{repo: repo, stores: stores, totals: totals, reports: reports}
}

// ── Open ──────────────────────────────────────────────────────────────────────

func (s *sessionService) Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionResponse, error) {
	storeID, err := uuid.Parse(req.StoreID)
	if err != nil {
		return nil, fmt.Errorf("invalid store_id: %w", err)
	}
	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("invalid device_id: %w", err)
	}
	if _, err := s.stores.FindByID(ctx, storeID); err != nil {
		return nil, errors.New("store not found")
	}
	device, err := s.stores.FindDeviceByID(ctx, deviceID)
	if err != nil {
		return nil, errors.New("device not found")
	}
	if device.StoreID != storeID {
		return nil, errors.New("device does not belong to store")
	}

	// One open session per device
	if existing, err := s.repo.FindOpenByDevice(ctx, deviceID); err == nil && existing != nil {
		return nil, errors.New("device already has an open session")
	}

	number, err := s.repo.NextSessionNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate session number: %w", err)
	}

	sess := &model.PosSession{
		SessionNumber:  number,
		StoreID:        &storeID,
		DeviceID:       &deviceID,
		OperatorID:     &operatorID,
		Status:         model.SessionOpen,
		OpenedAt:       time.Now().UTC(),
		OpeningBalance: req.OpeningBalance,
		ExpectedCash:   req.OpeningBalance,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return toSessionResponse(sess), nil
}

// ── Close ─────────────────────────────────────────────────────────────────────
// Blind count: the drawer amount is declared before the expected amount is
// revealed; the difference is computed server-side after the declaration.

func (s *sessionService) Close(ctx context.Context, id uuid.UUID, req dto.CloseSessionRequest) (*dto.SessionResponse, error) {
	sess, err := s.repo.FindByIDFull(ctx, id)
	if err != nil {
		return nil, errors.New("session not found")
	}
	if sess.Status != model.SessionOpen {
		return nil, errors.New("session is already closed")
	}

	now := time.Now().UTC()
	sess.Status = model.SessionClosed
	sess.ClosedAt = &now
	actual := req.ActualCash
	sess.ActualCash = &actual
	sess.ClosingData.ClosingNote = req.ClosingNote

	s.totals.Recalculate(sess)
	sess.ClosingData.Report = s.reports.GenerateZReport(sess)

	// Normal save path: the closing notification pipeline fans out here.
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	return toSessionResponse(sess), nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *sessionService) Get(ctx context.Context, id uuid.UUID) (*dto.SessionResponse, error) {
	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.New("session not found")
	}
	return toSessionResponse(sess), nil
}

func (s *sessionService) List(ctx context.Context, filter dto.SessionFilter) (*dto.SessionListResponse, error) {
	var storeID *uuid.UUID
	if filter.StoreID != "" {
		id, err := uuid.Parse(filter.StoreID)
		if err != nil {
			return nil, fmt.Errorf("invalid store_id: %w", err)
		}
		storeID = &id
	}
	sessions, total, err := s.repo.List(ctx, storeID, filter.Status, filter.Page, filter.Limit)
	if err != nil {
		return nil, err
	}
	resp := &dto.SessionListResponse{
		Sessions: make([]dto.SessionResponse, 0, len(sessions)),
		Total:    total,
		Page:     filter.Page,
		Limit:    filter.Limit,
	}
	for i := range sessions {
		resp.Sessions = append(resp.Sessions, *toSessionResponse(&sessions[i]))
	}
	return resp, nil
}

func (s *sessionService) Report(ctx context.Context, id uuid.UUID) (*dto.ReportResponse, error) {
	sess, err := s.repo.FindByIDFull(ctx, id)
	if err != nil {
		return nil, errors.New("session not found")
	}
	resp := &dto.ReportResponse{SessionID: sess.ID.String()}
	if sess.Status == model.SessionClosed {
		resp.Report = sess.ClosingData.Report
		if resp.Report == nil {
			// Closed before report caching existed; derive without persisting.
			resp.Report = s.reports.GenerateZReport(sess)
		}
		return resp, nil
	}
	resp.Report = s.reports.GenerateXReport(sess)
	return resp, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func toSessionResponse(s *model.PosSession) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		ID:               s.ID.String(),
		SessionNumber:    s.SessionNumber,
		Status:           s.Status,
		OpenedAt:         s.OpenedAt.Format(time.RFC3339),
		OpeningBalance:   s.OpeningBalance,
		TransactionCount: s.TransactionCount,
		TotalAmount:      s.TotalAmount,
		ExpectedCash:     s.ExpectedCash,
		ActualCash:       s.ActualCash,
		CashDifference:   s.CashDifference,
	}
	if s.StoreID != nil {
		id := s.StoreID.String()
		resp.StoreID = &id
	}
	if s.DeviceID != nil {
		id := s.DeviceID.String()
		resp.DeviceID = &id
	}
	if s.ClosedAt != nil {
		t := s.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &t
	}
	return resp
}
