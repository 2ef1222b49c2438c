package storage_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-refinery/internal/hash/sha256"
	"github.com/JakeFAU/profile-refinery/internal/profile"
	"github.com/JakeFAU/profile-refinery/internal/storage"
	"github.com/JakeFAU/profile-refinery/internal/storage/memory"
)

func TestSnapshotPath(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 9, 30, 5, 0, time.UTC)
	require.Equal(t, "records-20240501T093005Z.jsonl", storage.SnapshotPath("", at))
	require.Equal(t, "exports/records-20240501T093005Z.jsonl", storage.SnapshotPath("/exports/", at))
}

func TestWriteSnapshot(t *testing.T) {
	t.Parallel()

	blob := memory.NewBlobStore()
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	records := []profile.Record{
		{Name: "Dr. Adam Roe", Status: profile.StatusFailed},
		{
			Name:         "Dr. Jane Doe",
			Status:       profile.StatusManualReview,
			InitialScore: 0.2,
			FinalScore:   0.55,
			Fields:       profile.Fields{profile.FieldNPI: "1234567890"},
		},
	}

	snap, err := storage.WriteSnapshot(context.Background(), blob, nil, "records", records, at)
	require.NoError(t, err)
	require.Equal(t, "memory://records/records-20240501T093000Z.jsonl", snap.URI)
	require.Equal(t, 2, snap.Records)
	require.Empty(t, snap.ChecksumURI)

	data, ok := blob.Object("records/records-20240501T093000Z.jsonl")
	require.True(t, ok)

	var decoded []profile.Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var rec profile.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		decoded = append(decoded, rec)
	}
	require.Len(t, decoded, 2)
	require.Equal(t, "Dr. Jane Doe", decoded[1].Name)
	require.Equal(t, 0.55, decoded[1].FinalScore)
	require.Equal(t, "1234567890", decoded[1].Fields.String(profile.FieldNPI))
}

func TestWriteSnapshotRequiresStore(t *testing.T) {
	t.Parallel()

	_, err := storage.WriteSnapshot(context.Background(), nil, nil, "", nil, time.Now())
	require.Error(t, err)
}

func TestWriteSnapshotChecksum(t *testing.T) {
	t.Parallel()

	blob := memory.NewBlobStore()
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	records := []profile.Record{{Name: "Dr. Jane Doe", Status: profile.StatusVerified, InitialScore: 0.85, FinalScore: 0.85}}

	snap, err := storage.WriteSnapshot(context.Background(), blob, sha256.New(), "", records, at)
	require.NoError(t, err)
	require.Equal(t, "memory://records-20240501T093000Z.jsonl.sha256", snap.ChecksumURI)

	data, ok := blob.Object("records-20240501T093000Z.jsonl")
	require.True(t, ok)
	want, err := sha256.New().Hash(data)
	require.NoError(t, err)
	require.Equal(t, want, snap.Checksum)

	sidecar, ok := blob.Object("records-20240501T093000Z.jsonl.sha256")
	require.True(t, ok)
	require.Equal(t, want+"  records-20240501T093000Z.jsonl\n", string(sidecar))
}

type failingHasher struct{}

func (failingHasher) Hash([]byte) (string, error) { return "", errors.New("boom") }

func TestWriteSnapshotHashError(t *testing.T) {
	t.Parallel()

	blob := memory.NewBlobStore()
	snap, err := storage.WriteSnapshot(context.Background(), blob, failingHasher{}, "", nil, time.Now())
	require.ErrorContains(t, err, "hash snapshot")
	require.NotEmpty(t, snap.URI)
}
