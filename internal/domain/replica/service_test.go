package replica_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/replica"
	"github.com/tillpoint/possync/internal/repository"
	"github.com/tillpoint/possync/internal/repository/mocks"
)

const tenantID = "tenant1"

func newService(records *mocks.RecordRepository, writer *mocks.LocalWriter) *replica.Service {
	return replica.NewService(records, writer, mutation.NewQueue(&mocks.MutationRepository{}, nil), nil)
}

func TestService_CreatePairsRecordAndMutation(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	writer := &mocks.LocalWriter{}
	records.On("Get", ctx, tenantID, record.TableProducts, "p1").
		Return(nil, errors.Join(record.ErrRecordNotFound, repository.ErrNotFound))
	writer.On("ApplyLocalWrite", ctx, tenantID,
		mock.MatchedBy(func(r *record.Record) bool { return r.ID == "p1" && r.RemoteVersion == 0 }),
		mock.MatchedBy(func(m *mutation.Mutation) bool {
			return m.Op == mutation.OpCreate && m.RecordID == "p1" && m.ID != "" && m.BaseVersion == 0
		}),
	).Return(nil)

	svc := newService(records, writer)
	rec, err := svc.Create(ctx, tenantID, record.TableProducts, "p1", record.Payload{"stock_quantity": json.Number("3")})
	require.NoError(t, err)
	require.Equal(t, json.Number("3"), rec.Payload["stock_quantity"])
	writer.AssertExpectations(t)
}

func TestService_CreateExisting(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	records.On("Get", ctx, tenantID, record.TableProducts, "p1").
		Return(&record.Record{ID: "p1", Table: record.TableProducts, RemoteVersion: 4}, nil)

	svc := newService(records, &mocks.LocalWriter{})
	_, err := svc.Create(ctx, tenantID, record.TableProducts, "p1", nil)
	require.ErrorIs(t, err, replica.ErrRecordExists)
}

func TestService_UpdateCapturesBase(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	writer := &mocks.LocalWriter{}
	current := &record.Record{
		ID:            "c1",
		Table:         record.TableCustomers,
		Payload:       record.Payload{"name": "Ada", "loyalty_points": json.Number("10")},
		RemoteVersion: 3,
	}
	records.On("Get", ctx, tenantID, record.TableCustomers, "c1").Return(current, nil)
	writer.On("ApplyLocalWrite", ctx, tenantID, mock.Anything, mock.MatchedBy(func(m *mutation.Mutation) bool {
		return m.Op == mutation.OpUpdate &&
			m.BaseVersion == 3 &&
			m.BasePayload["loyalty_points"] == json.Number("10") &&
			m.Payload["loyalty_points"] == json.Number("12") &&
			m.Payload["name"] == "Ada"
	})).Return(nil)

	svc := newService(records, writer)
	rec, err := svc.Update(ctx, tenantID, record.TableCustomers, "c1", record.Payload{"loyalty_points": json.Number("12")})
	require.NoError(t, err)
	require.Equal(t, int64(3), rec.RemoteVersion)
	writer.AssertExpectations(t)
}

func TestService_DeleteTombstones(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	writer := &mocks.LocalWriter{}
	records.On("Get", ctx, tenantID, record.TableSales, "s1").
		Return(&record.Record{ID: "s1", Table: record.TableSales, Payload: record.Payload{"total": "9.99"}}, nil)
	writer.On("ApplyLocalWrite", ctx, tenantID,
		mock.MatchedBy(func(r *record.Record) bool { return r.Tombstone }),
		mock.MatchedBy(func(m *mutation.Mutation) bool { return m.Op == mutation.OpDelete }),
	).Return(nil)

	svc := newService(records, writer)
	require.NoError(t, svc.Delete(ctx, tenantID, record.TableSales, "s1"))
	writer.AssertExpectations(t)
}

func TestService_UpdateTombstoned(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	records.On("Get", ctx, tenantID, record.TableSales, "s1").
		Return(&record.Record{ID: "s1", Table: record.TableSales, Tombstone: true}, nil)

	svc := newService(records, &mocks.LocalWriter{})
	_, err := svc.Update(ctx, tenantID, record.TableSales, "s1", record.Payload{"total": "1"})
	require.ErrorIs(t, err, record.ErrRecordNotFound)
}

func TestService_StorageLossTurnsReadOnly(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	writer := &mocks.LocalWriter{}
	records.On("Get", ctx, tenantID, record.TableProducts, "p1").
		Return(nil, record.ErrRecordNotFound)
	writer.On("ApplyLocalWrite", ctx, tenantID, mock.Anything, mock.Anything).
		Return(record.ErrStorageUnavailable).Once()

	svc := newService(records, writer)
	var events []bool
	svc.OnAvailability(func(available bool) { events = append(events, available) })

	_, err := svc.Create(ctx, tenantID, record.TableProducts, "p1", nil)
	require.ErrorIs(t, err, replica.ErrReadOnly)
	require.True(t, svc.ReadOnly())

	_, err = svc.Create(ctx, tenantID, record.TableProducts, "p1", nil)
	require.ErrorIs(t, err, replica.ErrReadOnly)
	writer.AssertNumberOfCalls(t, "ApplyLocalWrite", 1)

	svc.SetAvailable(true)
	require.False(t, svc.ReadOnly())
	require.Equal(t, []bool{false, true}, events)
}

func TestService_InvalidInput(t *testing.T) {
	ctx := context.Background()
	svc := newService(&mocks.RecordRepository{}, &mocks.LocalWriter{})

	_, err := svc.Create(ctx, tenantID, "widgets", "w1", nil)
	require.ErrorIs(t, err, record.ErrInvalidInput)
	_, err = svc.Get(ctx, tenantID, record.TableProducts, "")
	require.ErrorIs(t, err, record.ErrInvalidInput)
}
