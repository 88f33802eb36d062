package app

import (
	"context"
	"fmt"

	"google.golang.org/api/option"

	"github.com/yungbote/roadmap-backend/internal/platform/artifacts"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

var newGCSSink = func(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (artifacts.Sink, error) {
	return artifacts.NewGCS(ctx, bucket, prefix, opts...)
}

type ArtifactBootstrapErrorCode string

const (
	ArtifactBootstrapErrorConnectFailed ArtifactBootstrapErrorCode = "connect_failed"
	ArtifactBootstrapErrorInvalidDir    ArtifactBootstrapErrorCode = "invalid_dir"
)

type ArtifactBootstrapError struct {
	Code   ArtifactBootstrapErrorCode
	Target string
	Cause  error
}

func (e *ArtifactBootstrapError) Error() string {
	if e == nil {
		return "artifact sink bootstrap failed"
	}
	return fmt.Sprintf("artifact sink bootstrap failed (code=%s target=%q): %v", e.Code, e.Target, e.Cause)
}

func (e *ArtifactBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveArtifactSink picks GCS when EMBED_ARTIFACT_BUCKET is set, a directory when EMBED_ARTIFACT_DIR is,
// and otherwise discards run summaries (they are still logged).
func resolveArtifactSink(ctx context.Context, log *logger.Logger, cfg Config) (artifacts.Sink, error) {
	switch {
	case cfg.ArtifactBucket != "":
		sink, err := newGCSSink(ctx, cfg.ArtifactBucket, cfg.ArtifactPrefix, artifacts.ClientOptionsFromEnv()...)
		if err != nil {
			return nil, &ArtifactBootstrapError{Code: ArtifactBootstrapErrorConnectFailed, Target: cfg.ArtifactBucket, Cause: err}
		}
		log.Info("run summaries go to object storage", "sink", sink.Describe())
		return sink, nil
	case cfg.ArtifactDir != "":
		sink, err := artifacts.NewLocalDir(cfg.ArtifactDir)
		if err != nil {
			return nil, &ArtifactBootstrapError{Code: ArtifactBootstrapErrorInvalidDir, Target: cfg.ArtifactDir, Cause: err}
		}
		log.Info("run summaries go to a local directory", "sink", sink.Describe())
		return sink, nil
	default:
		log.Warn("no artifact sink configured; run summaries are only logged")
		return artifacts.Discard{}, nil
	}
}
