package temporalx

import (
	"time"

	"github.com/yungbote/roadmap-backend/internal/platform/envutil"
	"github.com/yungbote/roadmap-backend/internal/platform/httpx"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout       time.Duration
	DialMaxWait       time.Duration
	DialBackoff       time.Duration
	DialBackoffMax    time.Duration
	AutoRegister      bool
	RetentionDays     int
	WorkerConcurrency int
}

// Enabled is false when TEMPORAL_ADDRESS is unset; runs then execute in-process.
func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) mTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

// Backoff is the wait after failed attempt n (1-based): DialBackoff doubled per attempt, capped at DialBackoffMax.
func (c Config) Backoff(n int) time.Duration {
	base := c.DialBackoff
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	return httpx.Backoff{Base: base, Max: c.DialBackoffMax}.Delay(max(n-1, 0), nil)
}

// retention clamps RetentionDays to what the frontend accepts, defaulting to a week.
func (c Config) retention() time.Duration {
	days := c.RetentionDays
	if days < 1 || days > 365 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "roadmaps"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "roadmap-embeddings"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		DialTimeout:       envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second),
		DialMaxWait:       envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", time.Minute),
		DialBackoff:       envutil.Duration("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond),
		DialBackoffMax:    envutil.Duration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second),
		AutoRegister:      envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:     envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),
		WorkerConcurrency: envutil.Int("TEMPORAL_WORKER_CONCURRENCY", 1),
	}
}
