// Package storage writes record snapshots to blob destinations (local disk,
// Google Cloud Storage, or memory).
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/profile-refinery/internal/profile"
)

// SnapshotContentType is the media type of exported snapshots.
const SnapshotContentType = "application/x-ndjson"

// BlobStore persists one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// SnapshotPath names the object for a snapshot taken at at.
func SnapshotPath(prefix string, at time.Time) string {
	name := "records-" + at.UTC().Format("20060102T150405Z") + ".jsonl"
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// ChecksumContentType is the media type of the checksum sidecar.
const ChecksumContentType = "text/plain; charset=utf-8"

// Hasher digests snapshot bytes into a hex string.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Snapshot describes an uploaded export.
type Snapshot struct {
	URI         string
	Records     int
	Checksum    string
	ChecksumURI string
}

// WriteSnapshot encodes records as JSON lines and uploads them under prefix.
// When hasher is non-nil a sidecar object named <snapshot>.sha256 is written
// next to it in sha256sum format.
func WriteSnapshot(ctx context.Context, blob BlobStore, hasher Hasher, prefix string, records []profile.Record, at time.Time) (Snapshot, error) {
	if blob == nil {
		return Snapshot{}, errors.New("blob store is required")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return Snapshot{}, fmt.Errorf("encode record %q: %w", rec.Name, err)
		}
	}
	data := buf.Bytes()
	objectPath := SnapshotPath(prefix, at)
	uri, err := blob.PutObject(ctx, objectPath, SnapshotContentType, bytes.NewReader(data))
	if err != nil {
		return Snapshot{}, fmt.Errorf("upload snapshot: %w", err)
	}
	snap := Snapshot{URI: uri, Records: len(records)}
	if hasher == nil {
		return snap, nil
	}

	sum, err := hasher.Hash(data)
	if err != nil {
		return snap, fmt.Errorf("hash snapshot: %w", err)
	}
	line := sum + "  " + path.Base(objectPath) + "\n"
	sumURI, err := blob.PutObject(ctx, objectPath+".sha256", ChecksumContentType, strings.NewReader(line))
	if err != nil {
		return snap, fmt.Errorf("upload checksum: %w", err)
	}
	snap.Checksum = sum
	snap.ChecksumURI = sumURI
	return snap, nil
}
