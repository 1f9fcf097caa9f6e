package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"closeout/internal/dto"
	"closeout/internal/model"
	"closeout/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── In-memory store repo ─────────────────────────────────────────────────────

type memStoreRepo struct {
	stores  map[uuid.UUID]*model.Store
	devices map[uuid.UUID]*model.Device
}

func newMemStoreRepo() *memStoreRepo {
	return &memStoreRepo{
		stores:  map[uuid.UUID]*model.Store{},
		devices: map[uuid.UUID]*model.Device{},
	}
}

func (m *memStoreRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Store, error) {
	s, ok := m.stores[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (m *memStoreRepo) FindDeviceByID(_ context.Context, id uuid.UUID) (*model.Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

type recordingObserver struct{ saved []string }

func (o *recordingObserver) SessionSaved(_ context.Context, s *model.PosSession) {
	o.saved = append(o.saved, s.SessionNumber)
}

func newSessionHarness(t *testing.T) (*memSessionRepo, *memStoreRepo, service.SessionService, uuid.UUID, uuid.UUID) {
	t.Helper()
	repo := newMemSessionRepo(newLedger())
	stores := newMemStoreRepo()

	account := testAccount
	store := &model.Store{ID: uuid.New(), Name: "Main St", StripeAccountID: &account}
	device := &model.Device{ID: uuid.New(), StoreID: store.ID, Label: "Till 1"}
	stores.stores[store.ID] = store
	stores.devices[device.ID] = device

	svc := service.NewSessionService(repo, stores,
		service.NewTotalsRecalculator(service.DrawerCashCalculator{}),
		service.NewReportGenerator())
	return repo, stores, svc, store.ID, device.ID
}

// ── Open ─────────────────────────────────────────────────────────────────────

func TestOpenSessionAllocatesSequentialNumbers(t *testing.T) {
	repo, stores, svc, storeID, deviceID := newSessionHarness(t)

	resp, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		StoreID:        storeID.String(),
		DeviceID:       deviceID.String(),
		OpeningBalance: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Z-0001", resp.SessionNumber)
	assert.Equal(t, model.SessionOpen, resp.Status)
	assert.Equal(t, int64(5000), resp.OpeningBalance)
	assert.Equal(t, int64(5000), resp.ExpectedCash)

	// Second device opens Z-0002.
	device2 := &model.Device{ID: uuid.New(), StoreID: storeID, Label: "Till 2"}
	stores.devices[device2.ID] = device2
	resp2, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		StoreID:  storeID.String(),
		DeviceID: device2.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Z-0002", resp2.SessionNumber)
	assert.Len(t, repo.sessions, 2)
}

func TestOpenSessionRejectsSecondOpenOnDevice(t *testing.T) {
	_, _, svc, storeID, deviceID := newSessionHarness(t)
	req := dto.OpenSessionRequest{StoreID: storeID.String(), DeviceID: deviceID.String()}

	_, err := svc.Open(context.Background(), uuid.New(), req)
	require.NoError(t, err)

	_, err = svc.Open(context.Background(), uuid.New(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open session")
}

func TestOpenSessionValidatesDeviceStoreMatch(t *testing.T) {
	_, stores, svc, storeID, _ := newSessionHarness(t)

	foreign := &model.Device{ID: uuid.New(), StoreID: uuid.New(), Label: "Stray"}
	stores.devices[foreign.ID] = foreign

	_, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		StoreID:  storeID.String(),
		DeviceID: foreign.ID.String(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not belong")
}

// ── Close ────────────────────────────────────────────────────────────────────

func TestCloseSessionBlindCount(t *testing.T) {
	repo, _, svc, storeID, deviceID := newSessionHarness(t)
	observer := &recordingObserver{}
	repo.observer = observer

	resp, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		StoreID:        storeID.String(),
		DeviceID:       deviceID.String(),
		OpeningBalance: 5000,
	})
	require.NoError(t, err)
	sessID := uuid.MustParse(resp.ID)

	// A cash sale lands while the session is open.
	sale := repo.l.addCharge(model.Charge{
		StripeAccountID: testAccount,
		Status:          model.ChargeSucceeded,
		PaymentMethod:   model.MethodCash,
		Amount:          2000,
		CreatedAt:       time.Now().UTC(),
	})
	sale.PosSessionID = &sessID

	closed, err := svc.Close(context.Background(), sessID, dto.CloseSessionRequest{ActualCash: 6900})
	require.NoError(t, err)
	assert.Equal(t, model.SessionClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, int64(7000), closed.ExpectedCash)
	require.NotNil(t, closed.CashDifference)
	assert.Equal(t, int64(-100), *closed.CashDifference)

	// Closing goes through the observed save path exactly once.
	assert.Equal(t, []string{"Z-0001"}, observer.saved)

	got := repo.sessions[sessID]
	require.NotNil(t, got.ClosingData.Report)
	assert.Equal(t, model.ReportKindZ, got.ClosingData.Report.Kind)
	require.NotNil(t, got.ClosingData.Report.ActualCash)
	assert.Equal(t, 69.00, *got.ClosingData.Report.ActualCash)
}

func TestCloseSessionTwiceFails(t *testing.T) {
	_, _, svc, storeID, deviceID := newSessionHarness(t)

	resp, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		StoreID:  storeID.String(),
		DeviceID: deviceID.String(),
	})
	require.NoError(t, err)
	sessID := uuid.MustParse(resp.ID)

	_, err = svc.Close(context.Background(), sessID, dto.CloseSessionRequest{})
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), sessID, dto.CloseSessionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already closed")
}

// ── Report ───────────────────────────────────────────────────────────────────

func TestReportForOpenSessionIsInterim(t *testing.T) {
	_, _, svc, storeID, deviceID := newSessionHarness(t)

	resp, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		StoreID:  storeID.String(),
		DeviceID: deviceID.String(),
	})
	require.NoError(t, err)

	rpt, err := svc.Report(context.Background(), uuid.MustParse(resp.ID))
	require.NoError(t, err)
	require.NotNil(t, rpt.Report)
	assert.Equal(t, model.ReportKindX, rpt.Report.Kind)
}

func TestReportForClosedSessionIsCached(t *testing.T) {
	repo, _, svc, storeID, deviceID := newSessionHarness(t)

	resp, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		StoreID:  storeID.String(),
		DeviceID: deviceID.String(),
	})
	require.NoError(t, err)
	sessID := uuid.MustParse(resp.ID)

	_, err = svc.Close(context.Background(), sessID, dto.CloseSessionRequest{ActualCash: 100})
	require.NoError(t, err)
	cached := repo.sessions[sessID].ClosingData.Report
	require.NotNil(t, cached)

	rpt, err := svc.Report(context.Background(), sessID)
	require.NoError(t, err)
	assert.Equal(t, cached.GeneratedAt, rpt.Report.GeneratedAt)
	assert.Equal(t, model.ReportKindZ, rpt.Report.Kind)
}
