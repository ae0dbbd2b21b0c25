package perf

import (
	"strings"
	"time"

	"github.com/small-frappuccino/discordui/pkg/logging"
)

// DefaultSlowThreshold is used when no threshold is configured.
const DefaultSlowThreshold = 2 * time.Second

// Start tracks how long a handler takes. The returned func logs a warning when
// the handler ran for at least threshold and always returns the elapsed time.
// A non-positive threshold disables the warning.
func Start(log *logging.Logger, threshold time.Duration, name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		elapsed := time.Since(start)
		if threshold <= 0 || elapsed < threshold {
			return elapsed
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = "unknown"
		}
		logging.OrGlobal(log).WithFields(map[string]any{
			"handler":     name,
			"duration":    elapsed.String(),
			"duration_ms": elapsed.Milliseconds(),
		}).Warn("Slow interaction handler")
		return elapsed
	}
}
