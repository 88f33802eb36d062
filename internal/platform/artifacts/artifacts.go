package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Sink persists small immutable objects such as run summaries.
type Sink interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Describe() string
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// RunSummaryKey builds embedding_runs/<model>/<start>.json with a filesystem-safe model segment.
func RunSummaryKey(model string, start time.Time) string {
	seg := strings.Trim(unsafeSegment.ReplaceAllString(strings.TrimSpace(model), "_"), "_")
	if seg == "" {
		seg = "unknown"
	}
	return fmt.Sprintf("embedding_runs/%s/%s.json", seg, start.UTC().Format("20060102T150405Z"))
}

type LocalDir struct {
	Root string
}

func NewLocalDir(root string) (*LocalDir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("artifact dir required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalDir{Root: root}, nil
}

func (l *LocalDir) Put(_ context.Context, key string, body []byte, _ string) error {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("artifact key escapes root: %q", key)
	}
	path := filepath.Join(l.Root, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (l *LocalDir) Describe() string { return "dir:" + l.Root }

// Discard drops artifacts; used when no sink is configured.
type Discard struct{}

func (Discard) Put(context.Context, string, []byte, string) error { return nil }
func (Discard) Describe() string                                  { return "discard" }
