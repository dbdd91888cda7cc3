package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"loanportal/pkg/domain"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return newGormStoreWithDB(db), mock
}

func TestGormStoreGetDocument(t *testing.T) {
	s, mock := newMockStore(t)
	uploaded := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "application_id", "category", "filename", "original_name", "content_type",
		"size_bytes", "status", "review_notes", "reviewed_by", "uploaded_by", "metadata", "uploaded_at", "reviewed_at",
	}).AddRow(
		"doc-1", "app-1", "pay_stubs", "user-1/pay_stubs/1.pdf", "march.pdf", "application/pdf",
		int64(2048), "pending", "", "", "user-1", []byte(`{"pages":"3"}`), uploaded, nil,
	)
	mock.ExpectQuery(`SELECT \* FROM "document_models" WHERE id = \$1`).WillReturnRows(rows)

	doc, found, err := s.GetDocument("doc-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.CategoryPayStubs, doc.Category)
	assert.Equal(t, domain.DocumentPending, doc.Status)
	assert.Equal(t, "3", doc.Metadata["pages"])
	assert.Nil(t, doc.ReviewedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreGetDocumentMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "document_models" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, found, err := s.GetDocument("nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreUpdateDocumentReviewMissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "document_models" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	_, err := s.UpdateDocumentReview("gone", DocumentReview{Status: domain.DocumentApproved, ReviewedBy: "admin-1"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreDeleteDocument(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "document_models" WHERE id = \$1`).
		WithArgs("doc-9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteDocument("doc-9"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreSaveApplicationUpserts(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "application_models" .* ON CONFLICT \("id"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	err := s.SaveApplication(domain.Application{
		ID:            "app-1",
		UserID:        "user-1",
		Status:        domain.ApplicationSubmitted,
		CurrentStage:  1,
		LoanAmountMin: decimal.NewNullDecimal(decimal.RequireFromString("15000")),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreListApplicationsFiltersByStatus(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT \* FROM "application_models" WHERE status = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "current_stage", "loan_amount_max", "created_at", "updated_at"}).
			AddRow("app-1", "user-1", "pre_approved", 4, "42000.00", created, created))

	apps, err := s.ListApplications(ApplicationFilter{Status: domain.ApplicationPreApproved, Limit: 20})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, 4, apps[0].CurrentStage)
	assert.True(t, apps[0].LoanAmountMax.Valid)
	assert.Equal(t, "42000", apps[0].LoanAmountMax.Decimal.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
