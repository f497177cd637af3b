// ABOUTME: Cooperative background refresh of the calendar connection
// ABOUTME: Schedules silent revalidation on a cron spec until the caller cancels
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// DefaultRefreshSpec refreshes every fifteen minutes.
const DefaultRefreshSpec = "@every 15m"

// SilentRefresher is anything that can refresh a connection without prompting.
type SilentRefresher interface {
	RefreshSilently(ctx context.Context) bool
}

// Refresher runs silent refreshes on a schedule.
type Refresher struct {
	target SilentRefresher
	spec   string
	logger *log.Logger
}

// NewRefresher creates a refresher. An empty spec uses DefaultRefreshSpec.
func NewRefresher(target SilentRefresher, spec string, logger *log.Logger) *Refresher {
	if spec == "" {
		spec = DefaultRefreshSpec
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Refresher{
		target: target,
		spec:   spec,
		logger: logger.With("component", "refresher"),
	}
}

// EverySpec turns an interval into a cron spec.
func EverySpec(interval time.Duration) string {
	return fmt.Sprintf("@every %s", interval)
}

// RunOnce performs a single silent refresh.
func (r *Refresher) RunOnce(ctx context.Context) bool {
	ok := r.target.RefreshSilently(ctx)
	if ok {
		r.logger.Debug("refresh succeeded")
	} else {
		r.logger.Debug("refresh skipped or failed")
	}
	return ok
}

// Run refreshes on schedule until ctx is cancelled. Overlapping runs are skipped.
func (r *Refresher) Run(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(r.logger.StandardLog())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	if _, err := c.AddFunc(r.spec, func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.spec, err)
	}

	r.logger.Info("background refresh started", "schedule", r.spec)
	c.Start()

	<-ctx.Done()

	// Wait for an in-flight refresh to finish.
	<-c.Stop().Done()
	r.logger.Info("background refresh stopped")
	return nil
}
