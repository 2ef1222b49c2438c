package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-refinery/internal/clock/system"
	"github.com/JakeFAU/profile-refinery/internal/profile"
	"github.com/JakeFAU/profile-refinery/internal/store"
)

var (
	testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	columns = []string{"name", "status", "initial_score", "final_score", "fields", "source_url", "assets", "updated_at"}
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	st, err := NewWithPool(mock, "records", system.Fixed{T: testNow})
	require.NoError(t, err)
	return st, mock
}

func TestUpsertWritesJSONColumns(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	rec := profile.Record{
		Name:         "Dr. Jane Doe",
		Status:       profile.StatusManualReview,
		InitialScore: 0.2,
		FinalScore:   0.55,
		Fields:       profile.Fields{profile.FieldLicense: "MD-12345"},
		SourceURL:    "https://clinic.example.com/jane",
		Assets:       profile.Assets{Documents: []string{"https://clinic.example.com/cv.pdf"}},
	}

	mock.ExpectExec("INSERT INTO records").
		WithArgs(
			rec.Name,
			"Manual_Review",
			0.2,
			0.55,
			[]byte(`{"license_id":"MD-12345"}`),
			rec.SourceURL,
			[]byte(`{"documents":["https://clinic.example.com/cv.pdf"],"images":null}`),
			testNow,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.Upsert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRejectsInvalidRecord(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	require.Error(t, st.Upsert(context.Background(), profile.Record{Name: "x", Status: "Unknown"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPropagatesExecError(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO records").WillReturnError(errors.New("connection reset"))

	err := st.Upsert(context.Background(), profile.Record{Name: "Dr. Jane Doe", Status: profile.StatusFailed})
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadAllDecodesRows(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	rows := pgxmock.NewRows(columns).
		AddRow("Dr. Adam Roe", "Failed", 0.0, 0.0, []byte(`{}`), "", []byte(`{"documents":null,"images":null}`), testNow).
		AddRow("Dr. Jane Doe", "Verified", 0.85, 0.85,
			[]byte(`{"npi_id":"1234567890","languages":["English","Spanish"]}`),
			"https://npiregistry.cms.hhs.gov/provider/1234567890",
			[]byte(`{"documents":[],"images":["https://x.gov/board.png"]}`),
			testNow)
	mock.ExpectQuery("SELECT name, status").WillReturnRows(rows)

	got, err := st.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, profile.StatusFailed, got[0].Status)
	require.Equal(t, profile.StatusVerified, got[1].Status)
	require.Equal(t, 0.85, got[1].FinalScore)
	require.Equal(t, []string{"English", "Spanish"}, got[1].Fields["languages"])
	require.Equal(t, []string{"https://x.gov/board.png"}, got[1].Assets.Images)
	require.Equal(t, testNow, got[1].UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT name, status").WithArgs("nobody").WillReturnError(pgx.ErrNoRows)

	_, err := st.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearThenReadAllIsEmpty(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM records").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectQuery("SELECT name, status").WillReturnRows(pgxmock.NewRows(columns))

	require.NoError(t, st.Clear(context.Background()))
	got, err := st.ReadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateCreatesTable(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS records").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "records", nil)
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "records; DROP TABLE x", nil)
	require.ErrorContains(t, err, "invalid table name")

	st, err := NewWithPool(mock, "", nil)
	require.NoError(t, err)
	require.Equal(t, DefaultTable, st.table)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{}, nil)
	require.ErrorContains(t, err, "store.dsn is required")
}
