package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/finz/backend/internal/domain/baseline"
	"github.com/finz/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBaselineRepository is a mock implementation of baseline.Repository
type MockBaselineRepository struct {
	mock.Mock
}

func (m *MockBaselineRepository) FindByID(ctx context.Context, id uuid.UUID) (*baseline.Baseline, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*baseline.Baseline), args.Error(1)
}

func (m *MockBaselineRepository) FindActiveByProject(ctx context.Context, projectID uuid.UUID) (*baseline.Baseline, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*baseline.Baseline), args.Error(1)
}

func (m *MockBaselineRepository) FindByProject(ctx context.Context, projectID uuid.UUID, filter shared.Filter) ([]baseline.Baseline, int64, error) {
	args := m.Called(ctx, projectID, filter)
	return args.Get(0).([]baseline.Baseline), args.Get(1).(int64), args.Error(2)
}

func (m *MockBaselineRepository) FindByStatus(ctx context.Context, status baseline.Status) ([]baseline.Baseline, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]baseline.Baseline), args.Error(1)
}

func (m *MockBaselineRepository) Save(ctx context.Context, b *baseline.Baseline) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBaselineRepository) SaveWithLock(ctx context.Context, b *baseline.Baseline) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBaselineRepository) Create(ctx context.Context, b *baseline.Baseline, entry *baseline.AuditEntry) error {
	args := m.Called(ctx, b, entry)
	return args.Error(0)
}

func (m *MockBaselineRepository) SaveTransition(ctx context.Context, b *baseline.Baseline, entry *baseline.AuditEntry) error {
	args := m.Called(ctx, b, entry)
	return args.Error(0)
}

// MockAuditLogRepository is a mock implementation of baseline.AuditLogRepository
type MockAuditLogRepository struct {
	mock.Mock
}

func (m *MockAuditLogRepository) Append(ctx context.Context, entry *baseline.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditLogRepository) FindByProjectAndAction(ctx context.Context, projectID uuid.UUID, action baseline.AuditAction) ([]baseline.AuditEntry, error) {
	args := m.Called(ctx, projectID, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]baseline.AuditEntry), args.Error(1)
}

func (m *MockAuditLogRepository) FindByBaseline(ctx context.Context, baselineID uuid.UUID) ([]baseline.AuditEntry, error) {
	args := m.Called(ctx, baselineID)
	return args.Get(0).([]baseline.AuditEntry), args.Error(1)
}

// MockSnapshotArchiver is a mock implementation of SnapshotArchiver
type MockSnapshotArchiver struct {
	mock.Mock
}

func (m *MockSnapshotArchiver) ArchiveBaseline(ctx context.Context, b *baseline.Baseline) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

type memStore struct {
	records map[string]*shared.IdempotencyRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*shared.IdempotencyRecord)}
}

func (s *memStore) Get(_ context.Context, key string) (*shared.IdempotencyRecord, error) {
	return s.records[key], nil
}

func (s *memStore) Put(_ context.Context, record shared.IdempotencyRecord, _ time.Duration) error {
	if _, exists := s.records[record.Key]; !exists {
		s.records[record.Key] = &record
	}
	return nil
}

func (s *memStore) Close() error { return nil }

func newTestGuard() *shared.IdempotencyGuard {
	return shared.NewIdempotencyGuard(newMemStore(), shared.DefaultIdempotencyConfig())
}

func testCreateRequest() CreateBaselineRequest {
	return CreateBaselineRequest{
		LineItems: []LineItemRequest{
			{RubroID: "R-100", Description: "Senior Engineer", Category: "LABOR", PlannedTotal: decimal.NewFromInt(120000)},
			{RubroID: "R-200", Description: "Cloud hosting", PlannedTotal: decimal.NewFromInt(36000)},
		},
	}
}

func acceptedBaseline(t *testing.T, projectID uuid.UUID) *baseline.Baseline {
	t.Helper()
	b, err := baseline.NewBaseline(projectID, []baseline.LineItem{
		{RubroID: "R-100", Description: "Senior Engineer", Category: "LABOR", PlannedTotal: decimal.NewFromInt(120000)},
	})
	require.NoError(t, err)
	require.NoError(t, b.HandOff("estimator@finz.io"))
	require.NoError(t, b.Accept("pmo@finz.io"))
	return b
}

func handedOffBaseline(t *testing.T, projectID uuid.UUID) *baseline.Baseline {
	t.Helper()
	b, err := baseline.NewBaseline(projectID, []baseline.LineItem{
		{RubroID: "R-100", Description: "Senior Engineer", Category: "LABOR", PlannedTotal: decimal.NewFromInt(120000)},
	})
	require.NoError(t, err)
	require.NoError(t, b.HandOff("estimator@finz.io"))
	return b
}

func TestCreateBaseline(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	t.Run("creates draft when no active baseline exists", func(t *testing.T) {
		repo := new(MockBaselineRepository)
		repo.On("FindActiveByProject", ctx, projectID).Return(nil, shared.ErrNotFound)
		repo.On("Create", ctx, mock.AnythingOfType("*baseline.Baseline"), mock.AnythingOfType("*baseline.AuditEntry")).Return(nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		resp, err := service.CreateBaseline(ctx, projectID, testCreateRequest(), "estimator@finz.io")
		require.NoError(t, err)

		assert.Equal(t, "DRAFT", resp.Status)
		assert.Len(t, resp.LineItems, 2)
		assert.Equal(t, "NON_LABOR", resp.LineItems[1].Category)
		assert.True(t, resp.PlannedTotal.Equal(decimal.NewFromInt(156000)))
		repo.AssertExpectations(t)
	})

	t.Run("supersedes an accepted baseline", func(t *testing.T) {
		current := acceptedBaseline(t, projectID)

		repo := new(MockBaselineRepository)
		repo.On("FindActiveByProject", ctx, projectID).Return(current, nil)
		repo.On("SaveWithLock", ctx, current).Return(nil)
		repo.On("Create", ctx, mock.AnythingOfType("*baseline.Baseline"), mock.AnythingOfType("*baseline.AuditEntry")).Return(nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		resp, err := service.CreateBaseline(ctx, projectID, testCreateRequest(), "estimator@finz.io")
		require.NoError(t, err)

		require.NotNil(t, current.SupersededBy)
		assert.Equal(t, resp.ID, *current.SupersededBy)
		repo.AssertExpectations(t)
	})

	t.Run("blocks when a baseline is still in progress", func(t *testing.T) {
		current := handedOffBaseline(t, projectID)

		repo := new(MockBaselineRepository)
		repo.On("FindActiveByProject", ctx, projectID).Return(current, nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		_, err := service.CreateBaseline(ctx, projectID, testCreateRequest(), "estimator@finz.io")
		require.Error(t, err)

		var derr *shared.DomainError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "ACTIVE_BASELINE_EXISTS", derr.Code)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects invalid line items before touching the store", func(t *testing.T) {
		repo := new(MockBaselineRepository)
		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)

		_, err := service.CreateBaseline(ctx, projectID, CreateBaselineRequest{
			LineItems: []LineItemRequest{{PlannedTotal: decimal.NewFromInt(100)}},
		}, "estimator@finz.io")
		require.Error(t, err)
		repo.AssertNotCalled(t, "FindActiveByProject", mock.Anything, mock.Anything)
	})
}

func TestGetBaseline(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	t.Run("returns an owned baseline", func(t *testing.T) {
		b := handedOffBaseline(t, projectID)
		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		resp, err := service.GetBaseline(ctx, projectID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, resp.ID)
		assert.Equal(t, "HANDED_OFF", resp.Status)
	})

	t.Run("hides baselines of other projects", func(t *testing.T) {
		b := handedOffBaseline(t, uuid.New())
		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		_, err := service.GetBaseline(ctx, projectID, b.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestHandOff(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	t.Run("requires an idempotency key", func(t *testing.T) {
		service := NewLifecycleService(new(MockBaselineRepository), new(MockAuditLogRepository), newTestGuard(), nil, nil)
		_, err := service.HandOff(ctx, projectID, uuid.New(), TransitionRequest{Version: 1}, "estimator@finz.io", "")
		assert.ErrorIs(t, err, shared.ErrMissingIdempotency)
	})

	t.Run("transitions a draft and writes the audit entry atomically", func(t *testing.T) {
		b, err := baseline.NewBaseline(projectID, []baseline.LineItem{
			{RubroID: "R-100", Description: "Senior Engineer", PlannedTotal: decimal.NewFromInt(100)},
		})
		require.NoError(t, err)

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)
		repo.On("SaveTransition", ctx, b, mock.MatchedBy(func(e *baseline.AuditEntry) bool {
			return e.Action == baseline.AuditActionHandedOff && e.Actor == "estimator@finz.io"
		})).Return(nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		resp, err := service.HandOff(ctx, projectID, b.ID, TransitionRequest{Version: 1}, "estimator@finz.io", "key-1")
		require.NoError(t, err)

		assert.Equal(t, "HANDED_OFF", resp.Status)
		assert.Equal(t, 2, resp.Version)
		assert.NotEmpty(t, resp.SignatureHash)
		assert.False(t, resp.Replayed)
		repo.AssertExpectations(t)
	})

	t.Run("stale version is rejected before mutation", func(t *testing.T) {
		b, err := baseline.NewBaseline(projectID, []baseline.LineItem{
			{RubroID: "R-100", Description: "Senior Engineer", PlannedTotal: decimal.NewFromInt(100)},
		})
		require.NoError(t, err)

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		_, err = service.HandOff(ctx, projectID, b.ID, TransitionRequest{Version: 7}, "estimator@finz.io", "key-1")
		assert.ErrorIs(t, err, shared.ErrStaleVersion)
		assert.Equal(t, baseline.StatusDraft, b.Status)
		repo.AssertNotCalled(t, "SaveTransition", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("retry with the same key replays without re-executing", func(t *testing.T) {
		b, err := baseline.NewBaseline(projectID, []baseline.LineItem{
			{RubroID: "R-100", Description: "Senior Engineer", PlannedTotal: decimal.NewFromInt(100)},
		})
		require.NoError(t, err)

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil).Once()
		repo.On("SaveTransition", ctx, b, mock.Anything).Return(nil).Once()

		guard := newTestGuard()
		service := NewLifecycleService(repo, new(MockAuditLogRepository), guard, nil, nil)

		first, err := service.HandOff(ctx, projectID, b.ID, TransitionRequest{Version: 1}, "estimator@finz.io", "key-1")
		require.NoError(t, err)

		second, err := service.HandOff(ctx, projectID, b.ID, TransitionRequest{Version: 1}, "estimator@finz.io", "key-1")
		require.NoError(t, err)

		assert.True(t, second.Replayed)
		assert.Equal(t, first.Version, second.Version)
		repo.AssertExpectations(t)
	})

	t.Run("key reuse with a different payload conflicts", func(t *testing.T) {
		b, err := baseline.NewBaseline(projectID, []baseline.LineItem{
			{RubroID: "R-100", Description: "Senior Engineer", PlannedTotal: decimal.NewFromInt(100)},
		})
		require.NoError(t, err)

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil).Once()
		repo.On("SaveTransition", ctx, b, mock.Anything).Return(nil).Once()

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)

		_, err = service.HandOff(ctx, projectID, b.ID, TransitionRequest{Version: 1}, "estimator@finz.io", "key-1")
		require.NoError(t, err)

		_, err = service.HandOff(ctx, projectID, b.ID, TransitionRequest{Version: 2}, "estimator@finz.io", "key-1")
		assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	})
}

func TestAccept(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	t.Run("archives the accepted snapshot", func(t *testing.T) {
		b := handedOffBaseline(t, projectID)

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)
		repo.On("SaveTransition", ctx, b, mock.MatchedBy(func(e *baseline.AuditEntry) bool {
			return e.Action == baseline.AuditActionAccepted
		})).Return(nil)

		archiver := new(MockSnapshotArchiver)
		archiver.On("ArchiveBaseline", ctx, b).Return(nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), archiver, nil)
		resp, err := service.Accept(ctx, projectID, b.ID, TransitionRequest{Version: 2}, "pmo@finz.io", "key-1")
		require.NoError(t, err)

		assert.Equal(t, "ACCEPTED", resp.Status)
		archiver.AssertExpectations(t)
	})

	t.Run("archive failure does not fail the acceptance", func(t *testing.T) {
		b := handedOffBaseline(t, projectID)

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)
		repo.On("SaveTransition", ctx, b, mock.Anything).Return(nil)

		archiver := new(MockSnapshotArchiver)
		archiver.On("ArchiveBaseline", ctx, b).Return(assert.AnError)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), archiver, nil)
		resp, err := service.Accept(ctx, projectID, b.ID, TransitionRequest{Version: 2}, "pmo@finz.io", "key-1")
		require.NoError(t, err)
		assert.Equal(t, "ACCEPTED", resp.Status)
	})

	t.Run("replayed acceptance does not re-archive", func(t *testing.T) {
		b := handedOffBaseline(t, projectID)

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)
		repo.On("SaveTransition", ctx, b, mock.Anything).Return(nil).Once()

		archiver := new(MockSnapshotArchiver)
		archiver.On("ArchiveBaseline", ctx, b).Return(nil).Once()

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), archiver, nil)

		_, err := service.Accept(ctx, projectID, b.ID, TransitionRequest{Version: 2}, "pmo@finz.io", "key-1")
		require.NoError(t, err)

		resp, err := service.Accept(ctx, projectID, b.ID, TransitionRequest{Version: 2}, "pmo@finz.io", "key-1")
		require.NoError(t, err)
		assert.True(t, resp.Replayed)
		archiver.AssertNumberOfCalls(t, "ArchiveBaseline", 1)
	})

	t.Run("fails from draft", func(t *testing.T) {
		b, err := baseline.NewBaseline(projectID, []baseline.LineItem{
			{RubroID: "R-100", Description: "Senior Engineer", PlannedTotal: decimal.NewFromInt(100)},
		})
		require.NoError(t, err)

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		_, err = service.Accept(ctx, projectID, b.ID, TransitionRequest{Version: 1}, "pmo@finz.io", "key-1")
		require.Error(t, err)
		var derr *shared.DomainError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "INVALID_STATE", derr.Code)
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	t.Run("requires a comment", func(t *testing.T) {
		service := NewLifecycleService(new(MockBaselineRepository), new(MockAuditLogRepository), newTestGuard(), nil, nil)
		_, err := service.Reject(ctx, projectID, uuid.New(), TransitionRequest{Version: 2}, "pmo@finz.io", "key-1")
		require.Error(t, err)
		var derr *shared.DomainError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "INVALID_COMMENT", derr.Code)
	})

	t.Run("records the comment on baseline and audit entry", func(t *testing.T) {
		b := handedOffBaseline(t, projectID)

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)
		repo.On("SaveTransition", ctx, b, mock.MatchedBy(func(e *baseline.AuditEntry) bool {
			return e.Action == baseline.AuditActionRejected && e.Detail == "labor rates outdated"
		})).Return(nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		resp, err := service.Reject(ctx, projectID, b.ID,
			TransitionRequest{Version: 2, Comment: "labor rates outdated"}, "pmo@finz.io", "key-1")
		require.NoError(t, err)

		assert.Equal(t, "REJECTED", resp.Status)
		assert.Equal(t, "labor rates outdated", resp.RejectionComment)
		repo.AssertExpectations(t)
	})
}

func TestListBaselines(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	t.Run("defaults to the first page of twenty", func(t *testing.T) {
		b := handedOffBaseline(t, projectID)

		repo := new(MockBaselineRepository)
		repo.On("FindByProject", ctx, projectID, shared.Filter{Page: 1, PageSize: 20}).
			Return([]baseline.Baseline{*b}, int64(1), nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		page, err := service.ListBaselines(ctx, projectID, shared.Filter{})
		require.NoError(t, err)

		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 20, page.PageSize)
		assert.Equal(t, int64(1), page.Total)
		assert.Equal(t, 1, page.TotalPages)
		require.Len(t, page.Items, 1)
		assert.Equal(t, b.ID, page.Items[0].ID)
		repo.AssertExpectations(t)
	})

	t.Run("passes the requested window through and derives total pages", func(t *testing.T) {
		repo := new(MockBaselineRepository)
		repo.On("FindByProject", ctx, projectID, shared.Filter{Page: 3, PageSize: 10}).
			Return([]baseline.Baseline{}, int64(45), nil)

		service := NewLifecycleService(repo, new(MockAuditLogRepository), newTestGuard(), nil, nil)
		page, err := service.ListBaselines(ctx, projectID, shared.Filter{Page: 3, PageSize: 10})
		require.NoError(t, err)

		assert.Equal(t, 3, page.Page)
		assert.Equal(t, int64(45), page.Total)
		assert.Equal(t, 5, page.TotalPages)
		assert.Empty(t, page.Items)
		repo.AssertExpectations(t)
	})
}

func TestGetAuditTrail(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.New()

	t.Run("returns the baseline's entries", func(t *testing.T) {
		b := handedOffBaseline(t, projectID)
		created, err := baseline.NewAuditEntry(projectID, b.ID, baseline.AuditActionCreated, "estimator@finz.io", "")
		require.NoError(t, err)
		handedOff, err := baseline.NewAuditEntry(projectID, b.ID, baseline.AuditActionHandedOff, "estimator@finz.io", "")
		require.NoError(t, err)

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)
		auditRepo := new(MockAuditLogRepository)
		auditRepo.On("FindByBaseline", ctx, b.ID).
			Return([]baseline.AuditEntry{*created, *handedOff}, nil)

		service := NewLifecycleService(repo, auditRepo, newTestGuard(), nil, nil)
		trail, err := service.GetAuditTrail(ctx, projectID, b.ID)
		require.NoError(t, err)

		require.Len(t, trail, 2)
		assert.Equal(t, "BASELINE_CREATED", trail[0].Action)
		assert.Equal(t, "BASELINE_HANDED_OFF", trail[1].Action)
		assert.Equal(t, b.ID, trail[0].BaselineID)
		repo.AssertExpectations(t)
		auditRepo.AssertExpectations(t)
	})

	t.Run("hides baselines of other projects", func(t *testing.T) {
		b := handedOffBaseline(t, uuid.New())

		repo := new(MockBaselineRepository)
		repo.On("FindByID", ctx, b.ID).Return(b, nil)
		auditRepo := new(MockAuditLogRepository)

		service := NewLifecycleService(repo, auditRepo, newTestGuard(), nil, nil)
		_, err := service.GetAuditTrail(ctx, projectID, b.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		auditRepo.AssertNotCalled(t, "FindByBaseline", mock.Anything, mock.Anything)
	})
}
