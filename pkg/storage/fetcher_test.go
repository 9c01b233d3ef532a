package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcherPrefersKnownStore(t *testing.T) {
	ctx := context.Background()
	media, err := NewLocalStore(t.TempDir(), "audio-recordings", "http://api.local/storage")
	require.NoError(t, err)
	require.NoError(t, media.Upload(ctx, "1_audio.webm", []byte("voice"), "audio/webm", true))

	fetcher := NewFetcher(nil, 0, media)
	data, err := fetcher.Fetch(ctx, media.PublicURL("1_audio.webm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("voice"), data)
}

func TestFetcherFallsBackToHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp4" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "0123456789")
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.Client(), 0)
	data, err := fetcher.Fetch(context.Background(), srv.URL+"/video.mp4")
	require.NoError(t, err)
	assert.Len(t, data, 10)

	_, err = fetcher.Fetch(context.Background(), srv.URL+"/missing.mp4")
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	_, err = NewFetcher(srv.Client(), 5).Fetch(context.Background(), srv.URL+"/video.mp4")
	assert.Error(t, err)
}
