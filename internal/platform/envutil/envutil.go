package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// parsed returns def when name is unset, blank, or fails parse.
func parsed[T any](name string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func String(name, def string) string {
	return parsed(name, def, func(s string) (string, error) { return s, nil })
}

func Int(name string, def int) int {
	return parsed(name, def, strconv.Atoi)
}

func Float(name string, def float64) float64 {
	return parsed(name, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// Bool also accepts yes/no, y/n and on/off.
func Bool(name string, def bool) bool {
	return parsed(name, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "yes", "y", "on":
			return true, nil
		case "no", "n", "off":
			return false, nil
		}
		return strconv.ParseBool(s)
	})
}

// Duration accepts Go duration strings ("250ms") or bare integers, read as milliseconds.
func Duration(name string, def time.Duration) time.Duration {
	return parsed(name, def, func(s string) (time.Duration, error) {
		if ms, err := strconv.Atoi(s); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		return time.ParseDuration(s)
	})
}
