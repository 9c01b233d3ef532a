package storage

import (
	"context"
	"fmt"
	"net/http"

	"github.com/insite-net/partage-api/pkg/config"
)

// LocalRoute is the path under which local buckets are served by the API.
const LocalRoute = "/storage"

// Open returns the ObjectStore for bucket on the configured driver.
func Open(ctx context.Context, cfg config.StorageConfig, publicBaseURL, bucket string, httpClient *http.Client) (ObjectStore, error) {
	switch cfg.Driver {
	case config.StorageLocal, "":
		return NewLocalStore(cfg.LocalDir, bucket, publicBaseURL+LocalRoute)
	case config.StorageS3:
		publicURL := ""
		if cfg.S3.PublicURL != "" {
			publicURL = cfg.S3.PublicURL + "/" + bucket
		}
		return NewS3Store(ctx, S3Options{
			Region:    cfg.S3.Region,
			Bucket:    bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Endpoint:  cfg.S3.Endpoint,
			PublicURL: publicURL,
		})
	case config.StorageSupabase:
		if cfg.Supabase.URL == "" || cfg.Supabase.ServiceRoleKey == "" {
			return nil, fmt.Errorf("supabase storage requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
		return NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, bucket, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
