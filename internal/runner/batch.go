package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/patchrun/patchrun/internal/eventlog"
	"github.com/patchrun/patchrun/internal/models"
)

// HostProcessor is what the batch loop needs from a per-host runner.
type HostProcessor interface {
	Run(ctx context.Context, host models.TargetHost) models.HostOutcome
}

// NotFoundError reports a --server selector that matches no configured host.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("host %q is not present in the target list", e.Name)
}

// Batch processes targets strictly sequentially, one pass per host per
// invocation, pausing between hosts to throttle load on shared hypervisor
// infrastructure.
type Batch struct {
	runner   HostProcessor
	settings models.Settings
	events   *eventlog.Log
	sleep    func(time.Duration)
}

func NewBatch(runner HostProcessor, settings models.Settings, events *eventlog.Log) *Batch {
	return &Batch{
		runner:   runner,
		settings: settings,
		events:   events,
		sleep:    time.Sleep,
	}
}

func (b *Batch) Run(ctx context.Context, targets []models.TargetHost) (*models.Buckets, error) {
	effective, err := selectTargets(targets, b.settings.Server)
	if err != nil {
		return nil, err
	}

	buckets := &models.Buckets{}
	for i, host := range effective {
		b.events.Section(host.Name)
		buckets.Add(b.runner.Run(ctx, host))

		if i < len(effective)-1 && !b.settings.DryRun && b.settings.HostDelay > 0 {
			b.events.Info("", "pausing %s before next host", b.settings.HostDelay)
			b.sleep(b.settings.HostDelay)
		}
	}

	return buckets, nil
}

func selectTargets(targets []models.TargetHost, server string) ([]models.TargetHost, error) {
	if server == "" {
		return targets, nil
	}
	for _, host := range targets {
		if host.Name == server {
			return []models.TargetHost{host}, nil
		}
	}
	return nil, &NotFoundError{Name: server}
}
