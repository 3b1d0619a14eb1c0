package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxAge is how old an extraction directory must be before the
// janitor treats it as abandoned.
const DefaultMaxAge = time.Hour

// Janitor removes extraction directories left behind by a crashed or killed
// process. Directories of live requests are younger than maxAge and are kept.
type Janitor struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
}

// NewJanitor creates a janitor for scratchDir (empty means os.TempDir()).
// It sweeps every maxAge/2, and at least once a minute apart.
func NewJanitor(scratchDir string, maxAge time.Duration) *Janitor {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	interval := maxAge / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Janitor{dir: scratchDir, maxAge: maxAge, interval: interval}
}

// Start sweeps once immediately and then on every tick. It blocks until ctx
// is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Debug().
		Str("dir", j.dir).
		Dur("max_age", j.maxAge).
		Dur("interval", j.interval).
		Msg("Scratch janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			j.Sweep(now)
		}
	}
}

// Sweep removes extraction directories last modified before now-maxAge and
// returns how many it removed. Failures are logged and skipped.
func (j *Janitor) Sweep(now time.Time) int {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", j.dir).Msg("Scratch janitor: cannot list directory")
		return 0
	}

	cutoff := now.Add(-j.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), scratchPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		p := filepath.Join(j.dir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			log.Warn().Err(err).Str("dir", p).Msg("Scratch janitor: remove failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("dir", j.dir).Msg("Removed abandoned extraction directories")
	}
	return removed
}
