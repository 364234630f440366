package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wardenhq/warden/pkg/observability"
)

// Janitor removes session ledger files that have not been touched within the
// configured TTL. Abandoned editing sessions would otherwise accumulate on
// disk forever, since a failed review intentionally retains its file.
type Janitor struct {
	basePath string
	ttl      time.Duration
	logger   *observability.Logger
	cron     *cron.Cron
}

// NewJanitor creates a janitor for the ledger directory.
func NewJanitor(basePath string, ttl time.Duration, logger *observability.Logger) *Janitor {
	return &Janitor{
		basePath: basePath,
		ttl:      ttl,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the sweep with a cron expression and begins running it.
func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, func() {
		if _, err := j.Sweep(); err != nil {
			j.logger.WithError(err).Error("Session ledger sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule ledger sweep: %w", err)
	}
	j.cron.Start()
	j.logger.Infof("Session ledger janitor started with schedule %q", schedule)
	return nil
}

// Stop halts the scheduled sweeps.
func (j *Janitor) Stop() {
	j.cron.Stop()
}

// Sweep removes ledger files older than the TTL and returns how many were
// removed. A missing base directory means nothing has been staged yet.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.basePath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger directory: %w", err)
	}

	cutoff := time.Now().Add(-j.ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(j.basePath, entry.Name())
		if err := os.Remove(path); err != nil {
			j.logger.WithError(err).Warnf("Failed to remove stale ledger %s", entry.Name())
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Infof("Removed %d stale session ledger(s)", removed)
	}
	return removed, nil
}
