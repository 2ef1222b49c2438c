package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "storage client is required")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication(), option.WithEndpoint("http://127.0.0.1:1/storage/v1/"))
	require.NoError(t, err)
	defer client.Close()

	_, err = New(client, Config{})
	require.ErrorContains(t, err, "bucket name is required")

	store, err := New(client, Config{Bucket: "exports"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "path is required")
	require.NoError(t, store.Close())
}

func TestPutObjectUploadsToBucket(t *testing.T) {
	t.Parallel()

	uploads := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, "/upload/storage/v1/b/exports/o") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		uploads <- string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"bucket":"exports","name":"records/snap.jsonl"}`)
	}))
	defer srv.Close()

	store, err := Open(context.Background(), Config{Bucket: "exports"},
		option.WithoutAuthentication(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
	)
	require.NoError(t, err)
	defer store.Close()

	uri, err := store.PutObject(context.Background(), "records/snap.jsonl", "application/x-ndjson",
		strings.NewReader(`{"name":"Dr. Jane Doe"}`+"\n"))
	require.NoError(t, err)
	require.Equal(t, "gs://exports/records/snap.jsonl", uri)
	require.Contains(t, <-uploads, "Dr. Jane Doe")
}
