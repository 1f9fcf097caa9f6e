package service_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"closeout/internal/model"
	"closeout/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Full in-memory ledger shared by the charge/receipt/event repos ───────────

type ledger struct {
	charges  map[uuid.UUID]*model.Charge
	receipts map[uuid.UUID]*model.Receipt
	events   map[uuid.UUID]*model.Event
}

func newLedger() *ledger {
	return &ledger{
		charges:  map[uuid.UUID]*model.Charge{},
		receipts: map[uuid.UUID]*model.Receipt{},
		events:   map[uuid.UUID]*model.Event{},
	}
}

func (l *ledger) addCharge(c model.Charge) *model.Charge {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	l.charges[c.ID] = &c
	return &c
}

func (l *ledger) addReceipt(r model.Receipt) *model.Receipt {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	l.receipts[r.ID] = &r
	return &r
}

func (l *ledger) addEvent(e model.Event) *model.Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	l.events[e.ID] = &e
	return &e
}

func (l *ledger) receiptsOfCharge(chargeID uuid.UUID) []model.Receipt {
	var out []model.Receipt
	for _, r := range l.receipts {
		if r.ChargeID != nil && *r.ChargeID == chargeID {
			out = append(out, *r)
		}
	}
	return out
}

type memChargeRepo struct{ l *ledger }

func (m *memChargeRepo) FindOrphanCandidates(_ context.Context, accountID string) ([]model.Charge, error) {
	var out []model.Charge
	for _, c := range m.l.charges {
		if c.StripeAccountID == accountID && c.Status == model.ChargeSucceeded && c.PosSessionID == nil {
			cp := *c
			cp.Receipts = m.l.receiptsOfCharge(c.ID)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memChargeRepo) LinkToSession(_ context.Context, chargeID, sessionID uuid.UUID) error {
	if c, ok := m.l.charges[chargeID]; ok && c.PosSessionID == nil {
		id := sessionID
		c.PosSessionID = &id
	}
	return nil
}

type memReceiptRepo struct{ l *ledger }

func (m *memReceiptRepo) FindUnlinkedWithCharge(_ context.Context, accountID string) ([]model.Receipt, error) {
	var out []model.Receipt
	for _, r := range m.l.receipts {
		if r.PosSessionID != nil || r.ChargeID == nil {
			continue
		}
		c, ok := m.l.charges[*r.ChargeID]
		if !ok || c.StripeAccountID != accountID {
			continue
		}
		cp := *r
		cc := *c
		cp.Charge = &cc
		out = append(out, cp)
	}
	return out, nil
}

func (m *memReceiptRepo) FindUnlinkedByLinkedCharge(_ context.Context, sessionID uuid.UUID) ([]model.Receipt, error) {
	var out []model.Receipt
	for _, r := range m.l.receipts {
		if r.PosSessionID != nil || r.ChargeID == nil {
			continue
		}
		c, ok := m.l.charges[*r.ChargeID]
		if ok && c.PosSessionID != nil && *c.PosSessionID == sessionID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memReceiptRepo) LinkToSession(_ context.Context, receiptID, sessionID uuid.UUID) error {
	if r, ok := m.l.receipts[receiptID]; ok && r.PosSessionID == nil {
		id := sessionID
		r.PosSessionID = &id
	}
	return nil
}

type memEventRepo struct{ l *ledger }

func (m *memEventRepo) FindByChargeIDs(_ context.Context, chargeIDs []uuid.UUID) ([]model.Event, error) {
	wanted := map[uuid.UUID]bool{}
	for _, id := range chargeIDs {
		wanted[id] = true
	}
	var out []model.Event
	for _, e := range m.l.events {
		if e.ChargeID != nil && wanted[*e.ChargeID] {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEventRepo) FindUnlinkedWithCharge(_ context.Context, accountID string) ([]model.Event, error) {
	var out []model.Event
	for _, e := range m.l.events {
		if e.PosSessionID != nil || e.ChargeID == nil {
			continue
		}
		c, ok := m.l.charges[*e.ChargeID]
		if ok && c.StripeAccountID == accountID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEventRepo) LinkToSession(_ context.Context, eventID, sessionID uuid.UUID) error {
	if e, ok := m.l.events[eventID]; ok && e.PosSessionID == nil {
		id := sessionID
		e.PosSessionID = &id
	}
	return nil
}

// ── Fixtures ─────────────────────────────────────────────────────────────────

const testAccount = "acct_test_1"

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func newFinder(l *ledger) service.OrphanFinder {
	return service.NewOrphanFinder(
		&memChargeRepo{l: l}, &memReceiptRepo{l: l}, &memEventRepo{l: l},
		zerolog.Nop(),
	)
}

func closedSession(number string) *model.PosSession {
	opened := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)
	closed := opened.Add(9 * time.Hour)
	account := testAccount
	deviceID := uuid.New()
	return &model.PosSession{
		ID:            uuid.New(),
		SessionNumber: number,
		Status:        model.SessionClosed,
		OpenedAt:      opened,
		ClosedAt:      &closed,
		DeviceID:      &deviceID,
		Store:         &model.Store{ID: uuid.New(), Name: "Main St", StripeAccountID: &account},
	}
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestFinderSkipsSessionWithoutStoreAccount(t *testing.T) {
	l := newLedger()
	f := newFinder(l)

	noStore := closedSession("Z-0001")
	noStore.Store = nil
	counts, err := f.FindForSession(context.Background(), noStore, false)
	require.NoError(t, err)
	assert.Equal(t, service.OrphanCounts{}, counts)

	emptyAccount := closedSession("Z-0002")
	emptyAccount.Store.StripeAccountID = strPtr("")
	counts, err = f.FindForSession(context.Background(), emptyAccount, false)
	require.NoError(t, err)
	assert.Equal(t, service.OrphanCounts{}, counts)
}

func TestFinderLinksChargeByMetadataNumber(t *testing.T) {
	l := newLedger()
	sess := closedSession("Z-0007")
	// Settled well outside the window: the metadata number alone must carry it.
	c := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          2500,
		CreatedAt:       sess.OpenedAt.Add(-48 * time.Hour),
		Metadata:        model.ChargeMetadata{PosSessionNumber: strPtr("Z-0007")},
	})

	counts, err := newFinder(l).FindForSession(context.Background(), sess, false)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Charges)
	require.NotNil(t, l.charges[c.ID].PosSessionID)
	assert.Equal(t, sess.ID, *l.charges[c.ID].PosSessionID)
}

func TestFinderSignalForOtherSessionBlocksWindowFallback(t *testing.T) {
	l := newLedger()
	sess := closedSession("Z-0007")
	// Settled inside the window, but the metadata names another session:
	// the recorded number is trusted over the time heuristic.
	c := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          900,
		CreatedAt:       sess.OpenedAt.Add(time.Hour),
		Metadata:        model.ChargeMetadata{PosSessionNumber: strPtr("Z-0008")},
	})

	counts, err := newFinder(l).FindForSession(context.Background(), sess, false)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Charges)
	assert.Nil(t, l.charges[c.ID].PosSessionID)
}

func TestFinderWindowFallback(t *testing.T) {
	l := newLedger()
	sess := closedSession("Z-0007")
	inside := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          1200,
		CreatedAt:       sess.OpenedAt.Add(2 * time.Hour),
	})
	outside := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          700,
		CreatedAt:       sess.ClosedAt.Add(time.Hour),
	})
	// PaidAt takes precedence over CreatedAt for window matching.
	paidInside := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          300,
		CreatedAt:       sess.OpenedAt.Add(-72 * time.Hour),
		PaidAt:          timePtr(sess.OpenedAt.Add(3 * time.Hour)),
	})

	counts, err := newFinder(l).FindForSession(context.Background(), sess, false)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Charges)
	assert.NotNil(t, l.charges[inside.ID].PosSessionID)
	assert.Nil(t, l.charges[outside.ID].PosSessionID)
	assert.NotNil(t, l.charges[paidInside.ID].PosSessionID)
}

func TestFinderWindowFallbackOverlappingSessionsFirstWins(t *testing.T) {
	// Two sessions with overlapping windows: a charge with no session-number
	// evidence anywhere is claimed by whichever session is processed first.
	// Deliberately permissive; this test pins the behavior.
	l := newLedger()
	first := closedSession("Z-0001")
	second := closedSession("Z-0002")
	second.OpenedAt = first.OpenedAt.Add(time.Hour)
	second.ClosedAt = timePtr(first.ClosedAt.Add(time.Hour))
	second.Store = first.Store

	c := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          500,
		CreatedAt:       first.OpenedAt.Add(2 * time.Hour), // inside both windows
	})

	f := newFinder(l)
	counts, err := f.FindForSession(context.Background(), first, false)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Charges)

	counts, err = f.FindForSession(context.Background(), second, false)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Charges)
	assert.Equal(t, first.ID, *l.charges[c.ID].PosSessionID)
}

func TestFinderOnlySucceededUnlinkedCharges(t *testing.T) {
	l := newLedger()
	sess := closedSession("Z-0007")
	l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargePending,
		Amount:          100,
		CreatedAt:       sess.OpenedAt.Add(time.Hour),
	})
	other := uuid.New()
	l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          100,
		CreatedAt:       sess.OpenedAt.Add(time.Hour),
		PosSessionID:    &other,
	})

	counts, err := newFinder(l).FindForSession(context.Background(), sess, false)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Charges)
}

func TestFinderReceiptEvidenceCarriesCharge(t *testing.T) {
	l := newLedger()
	sess := closedSession("Z-0007")
	// Charge settled outside the window and carrying no metadata; its receipt
	// names the session.
	c := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          4000,
		CreatedAt:       sess.ClosedAt.Add(6 * time.Hour),
	})
	rec := l.addReceipt(model.Receipt{
		ChargeID: &c.ID,
		Data:     model.ReceiptData{SessionNumber: strPtr("Z-0007"), ReceiptNumber: "R-100"},
	})

	counts, err := newFinder(l).FindForSession(context.Background(), sess, false)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Charges)
	assert.Equal(t, 1, counts.Receipts)
	assert.Equal(t, sess.ID, *l.charges[c.ID].PosSessionID)
	assert.Equal(t, sess.ID, *l.receipts[rec.ID].PosSessionID)
}

func TestFinderEventByNumberAndByDeviceWindow(t *testing.T) {
	l := newLedger()
	sess := closedSession("Z-0007")
	c1 := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          100,
		CreatedAt:       sess.ClosedAt.Add(time.Hour), // outside window
	})
	byNumber := l.addEvent(model.Event{
		Type:       "charge.captured",
		ChargeID:   &c1.ID,
		Data:       model.EventData{SessionNumber: strPtr("Z-0007")},
		OccurredAt: sess.ClosedAt.Add(time.Hour),
	})

	c2 := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          200,
		CreatedAt:       sess.OpenedAt.Add(time.Hour),
	})
	byDevice := l.addEvent(model.Event{
		Type:       "drawer.opened",
		DeviceID:   sess.DeviceID,
		ChargeID:   &c2.ID,
		OccurredAt: sess.OpenedAt.Add(time.Hour),
	})

	otherDevice := uuid.New()
	unrelated := l.addEvent(model.Event{
		Type:       "drawer.opened",
		DeviceID:   &otherDevice,
		ChargeID:   &c2.ID,
		OccurredAt: sess.OpenedAt.Add(time.Hour),
	})

	counts, err := newFinder(l).FindForSession(context.Background(), sess, false)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Events)
	assert.Equal(t, sess.ID, *l.events[byNumber.ID].PosSessionID)
	assert.Equal(t, sess.ID, *l.events[byDevice.ID].PosSessionID)
	assert.Nil(t, l.events[unrelated.ID].PosSessionID)
	// Both referenced charges come along: c2 via the window, c1 through its
	// event naming the session.
	assert.Equal(t, 2, counts.Charges)
}

func TestFinderTrailingReceiptsOfLinkedCharges(t *testing.T) {
	l := newLedger()
	sess := closedSession("Z-0007")
	linked := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          100,
		CreatedAt:       sess.OpenedAt.Add(time.Hour),
		PosSessionID:    &sess.ID,
	})
	rec := l.addReceipt(model.Receipt{ChargeID: &linked.ID})

	counts, err := newFinder(l).FindForSession(context.Background(), sess, false)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Receipts)
	assert.Equal(t, sess.ID, *l.receipts[rec.ID].PosSessionID)
}

func TestFinderDryRunWritesNothingAndCountsOnce(t *testing.T) {
	l := newLedger()
	sess := closedSession("Z-0007")
	// Reachable through metadata, through its receipt, and through an event;
	// must count exactly once per axis.
	c := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          1000,
		CreatedAt:       sess.OpenedAt.Add(time.Hour),
		Metadata:        model.ChargeMetadata{PosSessionNumber: strPtr("Z-0007")},
	})
	rec := l.addReceipt(model.Receipt{
		ChargeID: &c.ID,
		Data:     model.ReceiptData{SessionNumber: strPtr("Z-0007")},
	})
	ev := l.addEvent(model.Event{
		Type:       "charge.captured",
		ChargeID:   &c.ID,
		Data:       model.EventData{SessionNumber: strPtr("Z-0007")},
		OccurredAt: sess.OpenedAt.Add(time.Hour),
	})

	counts, err := newFinder(l).FindForSession(context.Background(), sess, true)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Charges)
	assert.Equal(t, 1, counts.Receipts)
	assert.Equal(t, 1, counts.Events)

	assert.Nil(t, l.charges[c.ID].PosSessionID)
	assert.Nil(t, l.receipts[rec.ID].PosSessionID)
	assert.Nil(t, l.events[ev.ID].PosSessionID)
}

func TestFinderDryRunFoldsReceiptsOfCountedCharges(t *testing.T) {
	l := newLedger()
	sess := closedSession("Z-0007")
	// The charge matches on metadata; its receipt carries no session number
	// and would only surface via the linked-charge query in a real run.
	c := l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          1000,
		CreatedAt:       sess.OpenedAt.Add(time.Hour),
		Metadata:        model.ChargeMetadata{PosSessionNumber: strPtr("Z-0007")},
	})
	l.addReceipt(model.Receipt{ChargeID: &c.ID})

	dry, err := newFinder(l).FindForSession(context.Background(), sess, true)
	require.NoError(t, err)

	// A real run on identical data must report the same counts.
	l2 := newLedger()
	c2 := l2.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          1000,
		CreatedAt:       sess.OpenedAt.Add(time.Hour),
		Metadata:        model.ChargeMetadata{PosSessionNumber: strPtr("Z-0007")},
	})
	l2.addReceipt(model.Receipt{ChargeID: &c2.ID})
	wet, err := newFinder(l2).FindForSession(context.Background(), sess, false)
	require.NoError(t, err)

	assert.Equal(t, wet, dry)
	assert.Equal(t, 1, dry.Charges)
	assert.Equal(t, 1, dry.Receipts)
}

func TestFinderIsIdempotent(t *testing.T) {
	l := newLedger()
	sess := closedSession("Z-0007")
	l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		Amount:          1000,
		CreatedAt:       sess.OpenedAt.Add(time.Hour),
		Metadata:        model.ChargeMetadata{PosSessionNumber: strPtr("Z-0007")},
	})

	f := newFinder(l)
	first, err := f.FindForSession(context.Background(), sess, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Charges)

	second, err := f.FindForSession(context.Background(), sess, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Charges)
}
