package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/finz/backend/internal/domain/baseline"
	"github.com/finz/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockBaselineRepository creates a GormBaselineRepository with a mocked SQL connection
func newMockBaselineRepository(t *testing.T) (*GormBaselineRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormBaselineRepository(gormDB), mock, mockDB
}

func testBaseline(t *testing.T) *baseline.Baseline {
	t.Helper()
	b, err := baseline.NewBaseline(uuid.New(), []baseline.LineItem{
		{
			LineItemID:   uuid.New(),
			RubroID:      "RB-001",
			Description:  "Cloud operations",
			Category:     "NON_LABOR",
			PlannedTotal: decimal.NewFromInt(1200),
		},
	})
	require.NoError(t, err)
	return b
}

func baselineRows(t *testing.T, b *baseline.Baseline) *sqlmock.Rows {
	t.Helper()
	items, err := json.Marshal(b.LineItems)
	require.NoError(t, err)
	return sqlmock.NewRows([]string{
		"id", "created_at", "updated_at", "version",
		"project_id", "status", "line_items", "signature_hash",
	}).AddRow(b.ID, time.Now(), time.Now(), b.Version, b.ProjectID, b.Status.String(), items, b.SignatureHash)
}

func TestGormBaselineRepository_FindByID(t *testing.T) {
	t.Run("finds existing baseline", func(t *testing.T) {
		repo, mock, mockDB := newMockBaselineRepository(t)
		defer mockDB.Close()

		b := testBaseline(t)
		mock.ExpectQuery(`SELECT \* FROM "baselines" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(b.ID, 1).
			WillReturnRows(baselineRows(t, b))

		found, err := repo.FindByID(context.Background(), b.ID)

		assert.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, b.ID, found.ID)
		assert.Equal(t, baseline.StatusDraft, found.Status)
		require.Len(t, found.LineItems, 1)
		assert.Equal(t, "RB-001", found.LineItems[0].RubroID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound for missing baseline", func(t *testing.T) {
		repo, mock, mockDB := newMockBaselineRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "baselines" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(id, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		found, err := repo.FindByID(context.Background(), id)

		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Nil(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormBaselineRepository_FindActiveByProject(t *testing.T) {
	t.Run("filters superseded baselines", func(t *testing.T) {
		repo, mock, mockDB := newMockBaselineRepository(t)
		defer mockDB.Close()

		b := testBaseline(t)
		mock.ExpectQuery(`SELECT \* FROM "baselines" WHERE project_id = \$1 AND superseded_by IS NULL ORDER BY created_at DESC,.* LIMIT .*`).
			WithArgs(b.ProjectID, 1).
			WillReturnRows(baselineRows(t, b))

		found, err := repo.FindActiveByProject(context.Background(), b.ProjectID)

		assert.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, b.ID, found.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormBaselineRepository_SaveWithLock(t *testing.T) {
	t.Run("updates when version matches", func(t *testing.T) {
		repo, mock, mockDB := newMockBaselineRepository(t)
		defer mockDB.Close()

		b := testBaseline(t)
		require.NoError(t, b.HandOff("pm@example.com"))

		mock.ExpectExec(`UPDATE "baselines" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveWithLock(context.Background(), b)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrStaleVersion when a concurrent writer won", func(t *testing.T) {
		repo, mock, mockDB := newMockBaselineRepository(t)
		defer mockDB.Close()

		b := testBaseline(t)
		require.NoError(t, b.HandOff("pm@example.com"))

		mock.ExpectExec(`UPDATE "baselines" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(context.Background(), b)

		assert.ErrorIs(t, err, shared.ErrStaleVersion)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormBaselineRepository_SaveTransition(t *testing.T) {
	t.Run("commits status change and audit entry together", func(t *testing.T) {
		repo, mock, mockDB := newMockBaselineRepository(t)
		defer mockDB.Close()

		b := testBaseline(t)
		require.NoError(t, b.HandOff("pm@example.com"))
		entry, err := baseline.NewAuditEntry(b.ProjectID, b.ID, baseline.AuditActionHandedOff, "pm@example.com", "")
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "baselines" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "baseline_audit_entries"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = repo.SaveTransition(context.Background(), b, entry)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back the audit entry on a stale version", func(t *testing.T) {
		repo, mock, mockDB := newMockBaselineRepository(t)
		defer mockDB.Close()

		b := testBaseline(t)
		require.NoError(t, b.HandOff("pm@example.com"))
		entry, err := baseline.NewAuditEntry(b.ProjectID, b.ID, baseline.AuditActionHandedOff, "pm@example.com", "")
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "baselines" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = repo.SaveTransition(context.Background(), b, entry)

		assert.ErrorIs(t, err, shared.ErrStaleVersion)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
