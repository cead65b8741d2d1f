package runner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/patchrun/patchrun/internal/eventlog"
	"github.com/patchrun/patchrun/internal/hypervisor"
	"github.com/patchrun/patchrun/internal/models"
	"github.com/patchrun/patchrun/internal/sshexec"
)

const (
	reasonDisabled      = "disabled"
	reasonUpdatesFailed = "update commands failed"
	reasonInternalError = "internal error"
	reasonNoHypervisor  = "hypervisor not configured"
)

// Snapshotter is the snapshot reconciliation capability the runner depends on.
type Snapshotter interface {
	Reconcile(ctx context.Context, hv models.Hypervisor, vmID, name string) error
}

// HostRunner sequences the maintenance steps for one target host. Every error
// raised below it is converted into the host's outcome; nothing escapes to
// the batch loop.
type HostRunner struct {
	exec        sshexec.Executor
	snapshots   Snapshotter
	hypervisors map[string]models.Hypervisor
	settings    models.Settings
	events      *eventlog.Log
}

func NewHostRunner(exec sshexec.Executor, snapshots Snapshotter, hypervisors map[string]models.Hypervisor, settings models.Settings, events *eventlog.Log) *HostRunner {
	return &HostRunner{
		exec:        exec,
		snapshots:   snapshots,
		hypervisors: hypervisors,
		settings:    settings,
		events:      events,
	}
}

func (r *HostRunner) Run(ctx context.Context, host models.TargetHost) (outcome models.HostOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.events.Error(host.Name, "panic during host processing: %v", rec)
			outcome = models.HostOutcome{Host: host.Name, Status: models.StatusFailed, Reason: reasonInternalError}
		}
	}()

	if !host.Enabled {
		r.events.Warn(host.Name, "host is disabled, skipping")
		return models.HostOutcome{Host: host.Name, Status: models.StatusSkipped, Reason: reasonDisabled}
	}

	if !r.settings.SkipSnapshots {
		if reason := r.snapshotPhase(ctx, host); reason != "" {
			return models.HostOutcome{Host: host.Name, Status: models.StatusFailed, Reason: reason}
		}
	} else {
		r.events.Info(host.Name, "snapshot phase skipped")
	}

	if !r.settings.SkipUpdates {
		if reason := r.updatePhase(ctx, host); reason != "" {
			return models.HostOutcome{Host: host.Name, Status: models.StatusFailed, Reason: reason}
		}
	} else {
		r.events.Info(host.Name, "update phase skipped")
	}

	r.events.Success(host.Name, "maintenance completed")
	return models.HostOutcome{Host: host.Name, Status: models.StatusSucceeded}
}

// snapshotPhase returns the failure reason, or "" on success.
func (r *HostRunner) snapshotPhase(ctx context.Context, host models.TargetHost) string {
	hv, ok := r.hypervisors[host.Hypervisor]
	if !ok {
		r.events.Error(host.Name, "hypervisor %q is not configured", host.Hypervisor)
		return reasonNoHypervisor
	}

	r.events.Step(host.Name, "reconciling snapshot %q for VM %s on %s", r.settings.SnapshotName, host.VMID, hv.Name)
	if err := r.snapshots.Reconcile(ctx, hv, host.VMID, r.settings.SnapshotName); err != nil {
		r.events.Error(host.Name, "%v", err)
		var snapErr *hypervisor.SnapshotError
		if errors.As(err, &snapErr) {
			return snapErr.Reason
		}
		return "snapshot reconciliation failed"
	}

	r.events.Success(host.Name, "snapshot %q in place", r.settings.SnapshotName)
	return ""
}

// updatePhase runs the host's command sequence in declared order and returns
// the failure reason, or "" on success.
func (r *HostRunner) updatePhase(ctx context.Context, host models.TargetHost) string {
	for _, cmd := range host.Commands {
		if strings.Contains(cmd, "reboot") {
			if reason := r.dispatchReboot(ctx, host, cmd); reason != "" {
				return reason
			}
			continue
		}

		r.events.Step(host.Name, "running: %s", cmd)
		res, err := r.execute(ctx, host, cmd, r.settings.CommandTimeout)
		if err != nil {
			r.events.Error(host.Name, "%v", err)
			return reasonUpdatesFailed
		}
		// Full output goes to the event log; sinks decide how much to show.
		if out := strings.TrimSpace(res.Output); out != "" {
			r.events.Info(host.Name, "%s", out)
		}
		if res.ExitCode != 0 {
			r.events.Error(host.Name, "command exited %d: %s", res.ExitCode, cmd)
			return reasonUpdatesFailed
		}
	}
	return ""
}

// dispatchReboot sends a reboot command fire-and-forget: a short timeout, with
// timeout and connection-drop treated as the expected outcome since the remote
// end may drop the connection before replying. Any other error means the
// reboot never left, so it fails the host like any update command. Returns
// the failure reason, or "" when the reboot was dispatched.
func (r *HostRunner) dispatchReboot(ctx context.Context, host models.TargetHost, cmd string) string {
	r.events.Step(host.Name, "dispatching reboot: %s", cmd)
	_, err := r.execute(ctx, host, cmd, r.settings.RebootTimeout)
	if err != nil && !sshexec.IsTransient(err) {
		r.events.Error(host.Name, "%v", err)
		return reasonUpdatesFailed
	}
	r.events.Info(host.Name, "reboot dispatched")
	return ""
}

func (r *HostRunner) execute(ctx context.Context, host models.TargetHost, cmd string, timeout time.Duration) (sshexec.Result, error) {
	return r.exec.Execute(ctx, sshexec.Request{
		Address:    host.Address,
		Port:       host.Port,
		User:       host.User,
		Credential: host.Credential,
		Command:    cmd,
		Timeout:    timeout,
	})
}
