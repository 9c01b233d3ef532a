package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const supabaseListPage = 1000

// SupabaseStore talks to the Supabase Storage REST API for one bucket.
type SupabaseStore struct {
	baseURL    string
	apiKey     string
	bucket     string
	httpClient *http.Client
}

// NewSupabaseStore creates a client for bucket on the project at baseURL
// (for example https://<project>.supabase.co) using a service-role key.
func NewSupabaseStore(baseURL, apiKey, bucket string, httpClient *http.Client) *SupabaseStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &SupabaseStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		bucket:     bucket,
		httpClient: httpClient,
	}
}

// Bucket returns the bucket name.
func (s *SupabaseStore) Bucket() string { return s.bucket }

type supabaseListRequest struct {
	Prefix string             `json:"prefix"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
	SortBy supabaseListSortBy `json:"sortBy"`
}

type supabaseListSortBy struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

type supabaseListItem struct {
	Name      string     `json:"name"`
	ID        *string    `json:"id"`
	UpdatedAt *time.Time `json:"updated_at"`
	Metadata  *struct {
		Size int64 `json:"size"`
	} `json:"metadata"`
}

// List returns files directly under prefix. Folder placeholders are skipped.
func (s *SupabaseStore) List(ctx context.Context, prefix string) ([]Object, error) {
	folder := strings.TrimSuffix(prefix, "/")
	objects := make([]Object, 0)
	for offset := 0; ; offset += supabaseListPage {
		body, err := json.Marshal(supabaseListRequest{
			Prefix: folder,
			Limit:  supabaseListPage,
			Offset: offset,
			SortBy: supabaseListSortBy{Column: "name", Order: "asc"},
		})
		if err != nil {
			return nil, fmt.Errorf("encode list request: %w", err)
		}
		resp, err := s.do(ctx, http.MethodPost, s.baseURL+"/storage/v1/object/list/"+s.bucket, bytes.NewReader(body), "application/json", nil)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		var items []supabaseListItem
		err = decodeSupabase(resp, &items)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, item := range items {
			if item.ID == nil || item.Name == "" || strings.HasPrefix(item.Name, ".") {
				continue
			}
			obj := Object{Name: item.Name, Key: item.Name}
			if folder != "" {
				obj.Key = folder + "/" + item.Name
			}
			if item.Metadata != nil {
				obj.Size = item.Metadata.Size
			}
			if item.UpdatedAt != nil {
				obj.UpdatedAt = *item.UpdatedAt
			}
			objects = append(objects, obj)
		}
		if len(items) < supabaseListPage {
			return objects, nil
		}
	}
}

// Download fetches the object through the authenticated endpoint.
func (s *SupabaseStore) Download(ctx context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}
	resp, err := s.do(ctx, http.MethodGet, s.objectURL(key), nil, "", nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if err := checkSupabase(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Upload stores data at key; upsert maps to the x-upsert header.
func (s *SupabaseStore) Upload(ctx context.Context, key string, data []byte, contentType string, upsert bool) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	headers := map[string]string{"x-upsert": fmt.Sprintf("%t", upsert)}
	resp, err := s.do(ctx, http.MethodPost, s.objectURL(key), bytes.NewReader(data), contentType, headers)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	return checkSupabase(resp)
}

// Delete removes keys with the bulk prefixes endpoint.
func (s *SupabaseStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string][]string{"prefixes": keys})
	if err != nil {
		return fmt.Errorf("encode delete request: %w", err)
	}
	resp, err := s.do(ctx, http.MethodDelete, s.baseURL+"/storage/v1/object/"+s.bucket, bytes.NewReader(body), "application/json", nil)
	if err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	return checkSupabase(resp)
}

// PublicURL returns the public object URL; the bucket must be public.
func (s *SupabaseStore) PublicURL(key string) string {
	return publicObjectURL(s.publicBase(), key)
}

// KeyForURL reverses PublicURL.
func (s *SupabaseStore) KeyForURL(rawURL string) (string, bool) {
	return keyFromPublicURL(s.publicBase(), rawURL)
}

func (s *SupabaseStore) publicBase() string {
	return s.baseURL + "/storage/v1/object/public/" + s.bucket
}

func (s *SupabaseStore) objectURL(key string) string {
	return publicObjectURL(s.baseURL+"/storage/v1/object/"+s.bucket, key)
}

func (s *SupabaseStore) do(ctx context.Context, method, url string, body io.Reader, contentType string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("apikey", s.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.httpClient.Do(req)
}

type supabaseError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func checkSupabase(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr supabaseError
	_ = json.Unmarshal(raw, &apiErr)
	// Storage answers 400 with statusCode "404" for missing objects.
	if resp.StatusCode == http.StatusNotFound || apiErr.StatusCode == "404" || strings.EqualFold(apiErr.Error, "not_found") {
		return ErrObjectNotFound
	}
	if resp.StatusCode == http.StatusConflict || apiErr.StatusCode == "409" {
		return ErrObjectExists
	}
	msg := apiErr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return fmt.Errorf("supabase storage returned %d: %s", resp.StatusCode, msg)
}

func decodeSupabase(resp *http.Response, dest interface{}) error {
	defer resp.Body.Close() //nolint:errcheck
	if err := checkSupabase(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
