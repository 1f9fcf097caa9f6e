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
	"github.com/rs/zerolog"
)

// RegenerationService drives reconciliation and Z-report regeneration across
// one session or a filtered batch of closed sessions. Safe to re-run: given
// stable charge/receipt/event data the operation is idempotent.
type RegenerationService interface {
	// RegenerateBatch processes closed sessions matching the options, oldest
	// close first. Per-session failures are recorded in the returned stats
	// and never abort the batch; only a failure of the batch query itself
	// returns an error.
	RegenerateBatch(ctx context.Context, opts dto.RegenerateOptions) (*dto.RegenerateStats, error)
	// RegenerateSession reconciles and regenerates a single closed session,
	// archiving the first original report and a before/after diff.
	RegenerateSession(ctx context.Context, sessionID uuid.UUID, findMissing bool, reason string) *dto.RegenerateSessionResult
}

type regenerationService struct {
	sessions repository.SessionRepository
	finder   OrphanFinder
	totals   *TotalsRecalculator
	reports  ReportGenerator
	logger   zerolog.Logger
	now      func() time.Time
}

func NewRegenerationService(
	sessions repository.SessionRepository,
	finder OrphanFinder,
	totals *TotalsRecalculator,
	reports ReportGenerator,
	logger zerolog.Logger,
) RegenerationService {
	return &regenerationService{
		sessions: sessions,
		finder:   finder,
		totals:   totals,
		reports:  reports,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *regenerationService) RegenerateBatch(ctx context.Context, opts dto.RegenerateOptions) (*dto.RegenerateStats, error) {
	filter := repository.ClosedSessionFilter{
		StoreID: opts.StoreID,
		From:    opts.From,
		To:      opts.To,
		Limit:   opts.Limit,
	}
	sessions, err := s.sessions.FindClosed(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query closed sessions: %w", err)
	}

	stats := &dto.RegenerateStats{
		TotalSessions: len(sessions),
		Errors:        []string{},
	}
	for i := range sessions {
		sess := &sessions[i]
		counts, err := s.regenerateOne(ctx, sess, opts)
		stats.Processed++
		stats.ChargesFound += counts.Charges
		stats.ReceiptsFound += counts.Receipts
		stats.EventsFound += counts.Events
		if err != nil {
			stats.Errors = append(stats.Errors,
				fmt.Sprintf("%s (%s): %v", sess.SessionNumber, sess.ID, err))
			s.logger.Error().Err(err).
				Str("session", sess.SessionNumber).
				Str("session_id", sess.ID.String()).
				Msg("regeneration failed for session")
			continue
		}
		if !opts.DryRun {
			stats.Regenerated++
		}
	}

	s.logger.Info().
		Int("total", stats.TotalSessions).
		Int("regenerated", stats.Regenerated).
		Int("charges_found", stats.ChargesFound).
		Int("receipts_found", stats.ReceiptsFound).
		Int("events_found", stats.EventsFound).
		Int("errors", len(stats.Errors)).
		Bool("dry_run", opts.DryRun).
		Msg("batch regeneration finished")
	return stats, nil
}

// regenerateOne runs the per-session sequence inside an error boundary: any
// failure, including a panic, is returned as an error and isolated to this
// session.
func (s *regenerationService) regenerateOne(ctx context.Context, sess *model.PosSession, opts dto.RegenerateOptions) (counts OrphanCounts, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if opts.FindMissingData {
		counts, err = s.finder.FindForSession(ctx, sess, opts.DryRun)
		if err != nil {
			return counts, err
		}
	}

	// Dry run is a planning tool: no reload, no recalculation, no report.
	if opts.DryRun {
		return counts, nil
	}

	reason := opts.Reason
	if reason == "" {
		reason = "batch regeneration"
	}
	if err := s.refreshAndRegenerate(ctx, sess.ID, reason, nil); err != nil {
		return counts, err
	}
	return counts, nil
}

// refreshAndRegenerate is the shared tail of both entry points: reload fresh
// state, preserve the actual-cash snapshot, recompute totals, drop the cached
// report, regenerate and cache the new one. All writes are silent saves so
// reconciliation never re-triggers notifications or webhooks.
// decorate, when non-nil, may amend the closing data before the final save
// (used by the single-session path for original-report archival and diffing).
func (s *regenerationService) refreshAndRegenerate(ctx context.Context, id uuid.UUID, reason string, decorate func(full *model.PosSession, before, after model.RegenerationDiff)) error {
	full, err := s.sessions.FindByIDFull(ctx, id)
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}

	before := model.RegenerationDiff{
		TransactionsBefore: full.TransactionCount,
		TotalBefore:        full.TotalAmount,
	}

	// Order matters: the cached report may be the only holder of the
	// operator's actual cash count, so preservation runs before the report
	// is discarded and before the difference is recomputed.
	s.totals.PreserveActualCash(full)
	s.totals.Recalculate(full)

	full.ClosingData.Report = nil
	if err := s.sessions.SaveSilent(ctx, full); err != nil {
		return fmt.Errorf("save recalculated session: %w", err)
	}

	rpt := s.reports.GenerateZReport(full)
	now := s.now()
	full.ClosingData.Report = rpt
	full.ClosingData.RegeneratedAt = &now
	full.ClosingData.RegenerationReason = &reason

	if decorate != nil {
		after := before
		after.TransactionsAfter = full.TransactionCount
		after.TotalAfter = full.TotalAmount
		decorate(full, before, after)
	}

	if err := s.sessions.SaveSilent(ctx, full); err != nil {
		return fmt.Errorf("save regenerated report: %w", err)
	}
	return nil
}

func (s *regenerationService) RegenerateSession(ctx context.Context, sessionID uuid.UUID, findMissing bool, reason string) *dto.RegenerateSessionResult {
	res := &dto.RegenerateSessionResult{}
	fail := func(err error) *dto.RegenerateSessionResult {
		msg := err.Error()
		res.Error = &msg
		s.logger.Error().Err(err).
			Str("session_id", sessionID.String()).
			Msg("single-session regeneration failed")
		return res
	}

	sess, err := s.sessions.FindByIDFull(ctx, sessionID)
	if err != nil {
		return fail(fmt.Errorf("load session: %w", err))
	}
	if sess.Status != model.SessionClosed {
		return fail(errors.New("session is not closed"))
	}

	// Archive the very first report before anything can overwrite it. This
	// happens once: subsequent regenerations keep the earliest original.
	original := sess.ClosingData.Report
	alreadyArchived := sess.ClosingData.OriginalReport != nil

	if findMissing {
		counts, err := s.finder.FindForSession(ctx, sess, false)
		res.ChargesFound = counts.Charges
		res.ReceiptsFound = counts.Receipts
		res.EventsFound = counts.Events
		if err != nil {
			return fail(err)
		}
	}

	if reason == "" {
		reason = "manual regeneration"
	}
	err = s.refreshAndRegenerate(ctx, sessionID, reason, func(full *model.PosSession, _, after model.RegenerationDiff) {
		if original != nil && !alreadyArchived {
			full.ClosingData.OriginalReport = original
		}
		full.ClosingData.RegenerationDiff = &after
	})
	if err != nil {
		return fail(err)
	}

	res.Success = true
	return res
}
