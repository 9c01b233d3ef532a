package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher downloads media referenced by URL. URLs published by one of the
// known stores are read through that store; anything else goes over HTTP.
type Fetcher struct {
	stores   []ObjectStore
	client   *http.Client
	maxBytes int64
}

// NewFetcher builds a Fetcher. maxBytes <= 0 disables the size limit.
func NewFetcher(client *http.Client, maxBytes int64, stores ...ObjectStore) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{stores: stores, client: client, maxBytes: maxBytes}
}

// Fetch returns the bytes behind rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	for _, store := range f.stores {
		if key, ok := store.KeyForURL(rawURL); ok {
			data, err := store.Download(ctx, key)
			if err != nil {
				return nil, err
			}
			if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
				return nil, fmt.Errorf("object %s exceeds %d bytes", key, f.maxBytes)
			}
			return data, nil
		}
	}
	return f.fetchHTTP(ctx, rawURL)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrObjectNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", rawURL, f.maxBytes)
	}
	return data, nil
}
