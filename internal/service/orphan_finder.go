package service

import (
	"context"
	"time"

	"closeout/internal/model"
	"closeout/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrphanCounts is what a finder run found for one session. Counts, not
// identities: a record contributes to at most one count per run.
type OrphanCounts struct {
	Charges  int
	Receipts int
	Events   int
}

// OrphanFinder locates charges, receipts and events that almost certainly
// belong to a session but are not yet linked, and links them. In dry-run mode
// nothing is written; the counts report what a real run would link.
type OrphanFinder interface {
	FindForSession(ctx context.Context, s *model.PosSession, dryRun bool) (OrphanCounts, error)
}

type orphanFinder struct {
	charges  repository.ChargeRepository
	receipts repository.ReceiptRepository
	events   repository.EventRepository
	logger   zerolog.Logger
}

func NewOrphanFinder(
	charges repository.ChargeRepository,
	receipts repository.ReceiptRepository,
	events repository.EventRepository,
	logger zerolog.Logger,
) OrphanFinder {
	return &orphanFinder{charges: charges, receipts: receipts, events: events, logger: logger}
}

// FindForSession applies four matching layers as an ordered union:
//
//  1. unlinked succeeded charges with session-number evidence in their
//     metadata, receipts or events; charges with no evidence anywhere fall
//     back to the settlement-time window heuristic
//  2. unlinked receipts whose data blob names this session
//  3. unlinked events matching by session number, or by device within the
//     session window
//  4. unlinked receipts whose charge is already linked to this session
//
// The window fallback in layer 1 is deliberately permissive: a charge with no
// session number recorded anywhere is attributed by settlement time alone and
// can be mis-attributed when two sessions' windows overlap. That behavior is
// intentional and pinned by tests; do not tighten it here.
//
// A session without a store, or whose store has no Stripe account, cannot be
// reconciled: the finder returns zero counts and no error.
func (f *orphanFinder) FindForSession(ctx context.Context, s *model.PosSession, dryRun bool) (OrphanCounts, error) {
	var counts OrphanCounts

	if s.Store == nil || s.Store.StripeAccountID == nil || *s.Store.StripeAccountID == "" {
		f.logger.Debug().
			Str("session", s.SessionNumber).
			Msg("orphan finder: session has no store account, skipping")
		return counts, nil
	}
	account := *s.Store.StripeAccountID
	number := s.SessionNumber
	windowStart, windowEnd := s.Window()

	// Dedupe sets shared across layers. Dry-run cannot rely on persisted
	// links, so every axis gets its own set: the same charge reachable via
	// metadata and via a receipt (or via two receipts) counts once.
	countedCharges := map[uuid.UUID]bool{}
	countedReceipts := map[uuid.UUID]bool{}
	countedEvents := map[uuid.UUID]bool{}

	// ── Layer 1: charges by session-number evidence, window fallback ─────────

	candidates, err := f.charges.FindOrphanCandidates(ctx, account)
	if err != nil {
		return counts, err
	}
	candidateByID := make(map[uuid.UUID]*model.Charge, len(candidates))
	chargeIDs := make([]uuid.UUID, 0, len(candidates))
	for i := range candidates {
		candidateByID[candidates[i].ID] = &candidates[i]
		chargeIDs = append(chargeIDs, candidates[i].ID)
	}

	evidenceEvents, err := f.events.FindByChargeIDs(ctx, chargeIDs)
	if err != nil {
		return counts, err
	}
	eventsByCharge := map[uuid.UUID][]model.Event{}
	for _, ev := range evidenceEvents {
		if ev.ChargeID != nil {
			eventsByCharge[*ev.ChargeID] = append(eventsByCharge[*ev.ChargeID], ev)
		}
	}

	for i := range candidates {
		c := &candidates[i]
		if !f.chargeBelongs(c, eventsByCharge[c.ID], number, windowStart, windowEnd) {
			continue
		}
		countedCharges[c.ID] = true
		counts.Charges++
		if !dryRun {
			if err := f.charges.LinkToSession(ctx, c.ID, s.ID); err != nil {
				return counts, err
			}
		}
	}

	// ── Layer 2: receipts naming this session ────────────────────────────────

	unlinkedReceipts, err := f.receipts.FindUnlinkedWithCharge(ctx, account)
	if err != nil {
		return counts, err
	}
	for i := range unlinkedReceipts {
		rec := &unlinkedReceipts[i]
		if rec.Data.SessionNumber == nil || *rec.Data.SessionNumber != number {
			continue
		}
		countedReceipts[rec.ID] = true
		counts.Receipts++
		if !dryRun {
			if err := f.receipts.LinkToSession(ctx, rec.ID, s.ID); err != nil {
				return counts, err
			}
		}
		// Pull the charge along when it is still unlinked and uncounted.
		if rec.Charge != nil && rec.Charge.PosSessionID == nil && !countedCharges[rec.Charge.ID] {
			countedCharges[rec.Charge.ID] = true
			counts.Charges++
			if !dryRun {
				if err := f.charges.LinkToSession(ctx, rec.Charge.ID, s.ID); err != nil {
					return counts, err
				}
			}
		}
	}

	// ── Layer 3: events by session number or device+window ───────────────────

	unlinkedEvents, err := f.events.FindUnlinkedWithCharge(ctx, account)
	if err != nil {
		return counts, err
	}
	for i := range unlinkedEvents {
		ev := &unlinkedEvents[i]
		if countedEvents[ev.ID] {
			continue
		}
		byNumber := ev.Data.SessionNumber != nil && *ev.Data.SessionNumber == number
		byDevice := s.DeviceID != nil && ev.DeviceID != nil && *ev.DeviceID == *s.DeviceID &&
			!ev.OccurredAt.Before(windowStart) && !ev.OccurredAt.After(windowEnd)
		if !byNumber && !byDevice {
			continue
		}
		countedEvents[ev.ID] = true
		counts.Events++
		if !dryRun {
			if err := f.events.LinkToSession(ctx, ev.ID, s.ID); err != nil {
				return counts, err
			}
		}
		if ev.ChargeID != nil && !countedCharges[*ev.ChargeID] {
			if c, ok := candidateByID[*ev.ChargeID]; ok {
				countedCharges[c.ID] = true
				counts.Charges++
				if !dryRun {
					if err := f.charges.LinkToSession(ctx, c.ID, s.ID); err != nil {
						return counts, err
					}
				}
			}
		}
	}

	// ── Layer 4: receipts of charges already linked to this session ──────────

	trailing, err := f.receipts.FindUnlinkedByLinkedCharge(ctx, s.ID)
	if err != nil {
		return counts, err
	}
	for i := range trailing {
		rec := &trailing[i]
		if countedReceipts[rec.ID] {
			continue
		}
		countedReceipts[rec.ID] = true
		counts.Receipts++
		if !dryRun {
			if err := f.receipts.LinkToSession(ctx, rec.ID, s.ID); err != nil {
				return counts, err
			}
		}
	}
	if dryRun {
		// Links from layers 1-3 were not persisted, so the query above cannot
		// see receipts of charges counted in this run. Fold them in here.
		for i := range unlinkedReceipts {
			rec := &unlinkedReceipts[i]
			if countedReceipts[rec.ID] || rec.ChargeID == nil {
				continue
			}
			if countedCharges[*rec.ChargeID] {
				countedReceipts[rec.ID] = true
				counts.Receipts++
			}
		}
	}

	f.logger.Debug().
		Str("session", number).
		Int("charges", counts.Charges).
		Int("receipts", counts.Receipts).
		Int("events", counts.Events).
		Bool("dry_run", dryRun).
		Msg("orphan finder: session scan complete")
	return counts, nil
}

// chargeBelongs decides layer-1 eligibility for a single charge.
//
// Direct evidence wins: the session number recorded in the charge's metadata,
// on one of its receipts, or on an event referencing it. When no session
// number is recorded anywhere, the settlement-time window fallback applies;
// a signal naming a different session blocks the fallback by existing.
func (f *orphanFinder) chargeBelongs(c *model.Charge, chargeEvents []model.Event, number string, windowStart, windowEnd time.Time) bool {
	hasSignal := false

	if c.Metadata.PosSessionNumber != nil {
		if *c.Metadata.PosSessionNumber == number {
			return true
		}
		hasSignal = true
	}
	for i := range c.Receipts {
		if n := c.Receipts[i].Data.SessionNumber; n != nil {
			if *n == number {
				return true
			}
			hasSignal = true
		}
	}
	for i := range chargeEvents {
		if n := chargeEvents[i].Data.SessionNumber; n != nil {
			if *n == number {
				return true
			}
			hasSignal = true
		}
	}
	if hasSignal {
		return false
	}

	settled := c.SettledAt()
	return !settled.Before(windowStart) && !settled.After(windowEnd)
}
