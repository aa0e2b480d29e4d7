package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/synclog"
)

// RecordRepository is a mock for repository.RecordRepository.
type RecordRepository struct {
	mock.Mock
}

func (m *RecordRepository) Get(ctx context.Context, tenantID string, table record.Table, id string) (*record.Record, error) {
	args := m.Called(ctx, tenantID, table, id)
	if rec, ok := args.Get(0).(*record.Record); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) List(ctx context.Context, tenantID string, table record.Table, opts record.ListOptions) ([]record.Record, error) {
	args := m.Called(ctx, tenantID, table, opts)
	if list, ok := args.Get(0).([]record.Record); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) Put(ctx context.Context, tenantID string, rec *record.Record) error {
	args := m.Called(ctx, tenantID, rec)
	return args.Error(0)
}

func (m *RecordRepository) MarkDeleted(ctx context.Context, tenantID string, table record.Table, id string, at time.Time) error {
	args := m.Called(ctx, tenantID, table, id, at)
	return args.Error(0)
}

func (m *RecordRepository) SetRemoteVersion(ctx context.Context, tenantID string, table record.Table, id string, version int64) error {
	args := m.Called(ctx, tenantID, table, id, version)
	return args.Error(0)
}

// MutationRepository is a mock for repository.MutationRepository.
type MutationRepository struct {
	mock.Mock
}

func (m *MutationRepository) Append(ctx context.Context, mut *mutation.Mutation) error {
	args := m.Called(ctx, mut)
	return args.Error(0)
}

func (m *MutationRepository) Get(ctx context.Context, tenantID, id string) (*mutation.Mutation, error) {
	args := m.Called(ctx, tenantID, id)
	if mut, ok := args.Get(0).(*mutation.Mutation); ok {
		return mut, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MutationRepository) OldestAfter(ctx context.Context, tenantID string, table record.Table, afterSeq int64) (*mutation.Mutation, error) {
	args := m.Called(ctx, tenantID, table, afterSeq)
	if mut, ok := args.Get(0).(*mutation.Mutation); ok {
		return mut, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MutationRepository) List(ctx context.Context, tenantID string, opts mutation.ListOptions) ([]mutation.Mutation, error) {
	args := m.Called(ctx, tenantID, opts)
	if list, ok := args.Get(0).([]mutation.Mutation); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MutationRepository) Update(ctx context.Context, mut *mutation.Mutation) error {
	args := m.Called(ctx, mut)
	return args.Error(0)
}

func (m *MutationRepository) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	args := m.Called(ctx, tenantID, id)
	return args.Bool(0), args.Error(1)
}

func (m *MutationRepository) DeleteForRecord(ctx context.Context, tenantID string, table record.Table, recordID string) (int64, error) {
	args := m.Called(ctx, tenantID, table, recordID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MutationRepository) Count(ctx context.Context, tenantID string) (int, error) {
	args := m.Called(ctx, tenantID)
	return args.Int(0), args.Error(1)
}

func (m *MutationRepository) ResetInflight(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

// LocalWriter is a mock for repository.LocalWriter.
type LocalWriter struct {
	mock.Mock
}

func (m *LocalWriter) ApplyLocalWrite(ctx context.Context, tenantID string, rec *record.Record, mut *mutation.Mutation) error {
	args := m.Called(ctx, tenantID, rec, mut)
	return args.Error(0)
}

// SyncLogRepository is a mock for repository.SyncLogRepository.
type SyncLogRepository struct {
	mock.Mock
}

func (m *SyncLogRepository) Append(ctx context.Context, tenantID string, entry *synclog.Entry, limit int) error {
	args := m.Called(ctx, tenantID, entry, limit)
	return args.Error(0)
}

func (m *SyncLogRepository) List(ctx context.Context, tenantID string, opts synclog.ListOptions) ([]synclog.Entry, error) {
	args := m.Called(ctx, tenantID, opts)
	if list, ok := args.Get(0).([]synclog.Entry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SyncLogRepository) Clear(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}
