package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Logger is a key/value logger over zap. Its method set also satisfies Temporal's log.Logger.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for mode "production", "development" (default) or "test".
// LOG_LEVEL overrides the mode's level.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	case "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	if lvl := strings.TrimSpace(os.Getenv("LOG_LEVEL")); lvl != "" {
		parsed, err := zap.ParseAtomicLevel(strings.ToLower(lvl))
		if err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		cfg.Level = parsed
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: z.Sugar()}, nil
}

func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() { _ = l.SugaredLogger.Sync() }

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, policy().apply(keysAndValues)...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, policy().apply(keysAndValues)...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, policy().apply(keysAndValues)...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, policy().apply(keysAndValues)...)
}

func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, policy().apply(keysAndValues)...)
}

func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if len(keysAndValues) == 0 {
		return l
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With(policy().apply(keysAndValues)...)}
}

// redaction decides what may reach the log stream. Credentials are dropped, user identifiers are hashed,
// and free text (profile goals, content bodies, prompts) is clipped to a preview.
type redaction struct {
	enabled  bool
	salt     string
	maxChars int
}

const redactedValue = "[REDACTED]"

var (
	policyOnce sync.Once
	active     redaction
)

func policy() redaction {
	policyOnce.Do(func() {
		active = redaction{enabled: true, salt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT")), maxChars: 160}
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			active.enabled = false
		}
	})
	return active
}

func (r redaction) apply(kv []interface{}) []interface{} {
	if !r.enabled || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		out[i+1] = r.value(strings.ToLower(key), out[i+1])
	}
	return out
}

func (r redaction) value(key string, v interface{}) interface{} {
	switch {
	case isSecretKey(key):
		return redactedValue
	case strings.HasSuffix(key, "user_id"), strings.HasSuffix(key, "session_id"):
		return r.hash(fmt.Sprint(v))
	case isFreeTextKey(key):
		if s, ok := v.(string); ok && len(s) > r.maxChars {
			return fmt.Sprintf("%s...(%d chars)", s[:r.maxChars], len(s))
		}
	}
	return v
}

func isSecretKey(key string) bool {
	if strings.Contains(key, "token") && !strings.Contains(key, "tokens") {
		return true
	}
	for _, s := range []string{"authorization", "password", "secret", "api_key", "apikey", "dsn", "email"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func isFreeTextKey(key string) bool {
	switch key {
	case "text", "text_content", "query", "query_text", "goals", "skills", "prompt", "profile", "body":
		return true
	}
	return false
}

func (r redaction) hash(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(r.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}
