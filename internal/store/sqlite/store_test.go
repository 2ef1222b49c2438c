package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-refinery/internal/clock/system"
	"github.com/JakeFAU/profile-refinery/internal/profile"
	"github.com/JakeFAU/profile-refinery/internal/store"
	"github.com/JakeFAU/profile-refinery/internal/store/memory"
)

var testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "records.db")
	st, err := New(context.Background(), dbPath, system.Fixed{T: testNow})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestUpsertAndReadAll(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	jane := profile.Record{
		Name:         "Dr. Jane Doe",
		Status:       profile.StatusPending,
		InitialScore: 0.2,
		Fields: profile.Fields{
			profile.FieldLicense:   "MD-12345",
			profile.FieldLanguages: []string{"English", "Spanish"},
		},
		SourceURL: "https://clinic.example.com/jane",
		Assets:    profile.Assets{Documents: []string{"https://clinic.example.com/cv.pdf"}},
	}
	require.NoError(t, st.Upsert(ctx, jane))
	require.NoError(t, st.Upsert(ctx, profile.Record{Name: "Dr. Adam Roe", Status: profile.StatusFailed}))

	jane.Status = profile.StatusManualReview
	jane.FinalScore = 0.55
	jane.Fields[profile.FieldNPI] = "1234567890"
	require.NoError(t, st.Upsert(ctx, jane))

	all, err := st.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "Dr. Adam Roe", all[0].Name)

	got := all[1]
	require.Equal(t, profile.StatusManualReview, got.Status)
	require.InDelta(t, 0.2, got.InitialScore, 1e-9)
	require.InDelta(t, 0.55, got.FinalScore, 1e-9)
	require.Equal(t, "1234567890", got.Fields.String(profile.FieldNPI))
	require.Equal(t, []string{"English", "Spanish"}, got.Fields[profile.FieldLanguages])
	require.Equal(t, []string{"https://clinic.example.com/cv.pdf"}, got.Assets.Documents)
	require.True(t, testNow.Equal(got.UpdatedAt))
}

func TestGet(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.Get(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.Upsert(ctx, profile.Record{Name: "Dr. Adam Roe", Status: profile.StatusFailed}))
	rec, err := st.Get(ctx, "Dr. Adam Roe")
	require.NoError(t, err)
	require.Equal(t, profile.StatusFailed, rec.Status)
	require.Empty(t, rec.Fields)
}

func TestClearThenReadAllIsEmpty(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, profile.Record{Name: "a", Status: profile.StatusVerified, FinalScore: 0.85}))
	require.NoError(t, st.Upsert(ctx, profile.Record{Name: "b", Status: profile.StatusFailed}))

	require.NoError(t, st.Clear(ctx))
	all, err := st.ReadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "", nil)
	require.Error(t, err)
}

func TestRoundTripMatchesMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sqliteStore := newTestStore(t)
	memStore := memory.New(system.Fixed{T: testNow})

	records := []profile.Record{
		{
			Name:         "Dr. Jane Doe",
			Status:       profile.StatusEnriched,
			InitialScore: 0.5,
			FinalScore:   0.85,
			Fields: profile.Fields{
				profile.FieldNPI:       "1234567890",
				profile.FieldLicense:   "MD-12345",
				profile.FieldLanguages: []string{"English"},
			},
			SourceURL: "https://npidb.org/doctors/jane",
			Assets: profile.Assets{
				Documents: []string{"https://npidb.org/cv.pdf"},
				Images:    []string{"https://npidb.org/board.png"},
			},
		},
		{Name: "Dr. Adam Roe", Status: profile.StatusFailed},
	}
	for _, rec := range records {
		require.NoError(t, sqliteStore.Upsert(ctx, rec))
		require.NoError(t, memStore.Upsert(ctx, rec))
	}

	want, err := memStore.ReadAll(ctx)
	require.NoError(t, err)
	got, err := sqliteStore.ReadAll(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("sqlite round trip mismatch (-memory +sqlite):\n%s", diff)
	}
}
