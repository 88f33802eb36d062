package artifacts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/roadmap-backend/internal/platform/envutil"
)

type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// ClientOptionsFromEnv reads GOOGLE_APPLICATION_CREDENTIALS(_JSON); inline JSON and file paths are both accepted.
// With STORAGE_EMULATOR_HOST set the client skips authentication.
func ClientOptionsFromEnv() []option.ClientOption {
	if envutil.String("STORAGE_EMULATOR_HOST", "") != "" {
		return []option.ClientOption{option.WithoutAuthentication()}
	}
	creds := envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	if creds == "" {
		creds = envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "")
	}
	if creds == "" {
		return []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds)), option.WithScopes(storage.ScopeReadWrite)}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds), option.WithScopes(storage.ScopeReadWrite)}
}

func NewGCS(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCS, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("artifact bucket required")
	}
	if len(opts) == 0 {
		opts = ClientOptionsFromEnv()
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (g *GCS) objectName(key string) string {
	if g.prefix == "" {
		return key
	}
	return g.prefix + "/" + key
}

func (g *GCS) Put(ctx context.Context, key string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(g.objectName(key)).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (g *GCS) Describe() string { return "gs://" + g.bucket + "/" + g.prefix }

func (g *GCS) Close() error { return g.client.Close() }
