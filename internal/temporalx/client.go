package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/roadmap-backend/internal/platform/httpx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// NewClient dials the frontend, retrying transient failures for up to DialMaxWait.
// It returns (nil, nil) when no address is configured.
func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (temporalsdkclient.Client, error) {
	if !cfg.Enabled() {
		log.Warn("TEMPORAL_ADDRESS not set; embedding runs execute in-process")
		return nil, nil
	}
	opts, err := clientOptions(cfg, log, true)
	if err != nil {
		return nil, err
	}

	var c temporalsdkclient.Client
	err = retryTransient(ctx, cfg, log, "dial", anyError, func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		var derr error
		c, derr = temporalsdkclient.DialContext(dctx, opts)
		return derr
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial %s/%s: %w", cfg.Address, cfg.Namespace, err)
	}
	if cfg.AutoRegister {
		if err := EnsureNamespace(ctx, cfg, log); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// EnsureNamespace registers cfg.Namespace when the server does not know it. Meant for dev clusters.
func EnsureNamespace(ctx context.Context, cfg Config, log *logger.Logger) error {
	if !cfg.Enabled() || cfg.Namespace == "" {
		return nil
	}
	// No namespace on these options: the namespace client must work before the namespace exists.
	opts, err := clientOptions(cfg, log, false)
	if err != nil {
		return err
	}
	nc, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace client: %w", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	retention := cfg.retention()
	return retryTransient(ctx, cfg, log, "ensure_namespace", isRetryableRPC, func(ctx context.Context) error {
		_, err := nc.Describe(ctx, cfg.Namespace)
		var missing *serviceerror.NamespaceNotFound
		if err == nil || !errors.As(err, &missing) {
			return err
		}
		err = nc.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        cfg.Namespace,
			Description:                      "roadmap embedding runs",
			WorkflowExecutionRetentionPeriod: durationpb.New(retention),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		if err != nil && !errors.As(err, &exists) {
			return err
		}
		log.Info("Temporal namespace registered", "namespace", cfg.Namespace, "retention", retention.String())
		return nil
	})
}

// retryTransient runs op until it succeeds, fails with an error retry rejects, or DialMaxWait elapses.
func retryTransient(ctx context.Context, cfg Config, log *logger.Logger, what string, retry func(error) bool, op func(context.Context) error) error {
	deadline := time.Now().Add(cfg.DialMaxWait)
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("Temporal reachable", "op", what, "attempts", attempt)
			}
			return nil
		}
		if !retry(err) || cfg.DialMaxWait <= 0 || time.Now().After(deadline) {
			return err
		}
		log.Warn("Temporal call failed; retrying", "op", what, "attempt", attempt, "error", err)
		if serr := httpx.Sleep(ctx, cfg.Backoff(attempt)); serr != nil {
			return errors.Join(err, serr)
		}
	}
}

func clientOptions(cfg Config, log *logger.Logger, withNamespace bool) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{
		HostPort: cfg.Address,
		Logger:   log.With("component", "temporal"),
	}
	if withNamespace {
		opts.Namespace = cfg.Namespace
	}
	if cfg.mTLS() {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			return opts, err
		}
		opts.ConnectionOptions.TLS = tlsCfg
	}
	return opts, nil
}

func loadTLSConfig(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, errors.New("temporal mTLS needs TEMPORAL_CLIENT_CERT_PATH and TEMPORAL_CLIENT_KEY_PATH")
	}
	pair, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("temporal mTLS key pair: %w", err)
	}
	out := &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}
	if cfg.ClientCAPath == "" {
		return out, nil
	}
	caPEM, err := os.ReadFile(cfg.ClientCAPath)
	if err != nil {
		return nil, fmt.Errorf("temporal mTLS CA: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("temporal mTLS CA %s: no certificates found", cfg.ClientCAPath)
	}
	out.RootCAs = roots
	return out, nil
}

// anyError retries every dial failure; the SDK does not surface a stable code for an unreachable frontend.
func anyError(err error) bool { return !errors.Is(err, context.Canceled) }

// isRetryableRPC is true for gRPC codes a later attempt can plausibly clear, and for timeouts.
func isRetryableRPC(err error) bool {
	if err == nil {
		return false
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
			return true
		}
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}
