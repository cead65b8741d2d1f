package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/patchrun/patchrun/internal/eventlog"
	"github.com/patchrun/patchrun/internal/hypervisor"
	"github.com/patchrun/patchrun/internal/models"
	"github.com/patchrun/patchrun/internal/sshexec"
)

// selectiveSnapshotter fails reconciliation for the listed VMs only.
type selectiveSnapshotter struct {
	calls   []string
	failFor map[string]error
}

func (s *selectiveSnapshotter) Reconcile(ctx context.Context, hv models.Hypervisor, vmID, name string) error {
	s.calls = append(s.calls, vmID)
	if err, ok := s.failFor[vmID]; ok {
		return err
	}
	return nil
}

func runScenario(t *testing.T, exec sshexec.Executor, snaps Snapshotter, settings models.Settings, hosts []models.TargetHost) *models.Buckets {
	t.Helper()
	events := eventlog.New()
	hostRunner := NewHostRunner(exec, snaps, testHypervisors(), settings, events)
	b := NewBatch(hostRunner, settings, events)
	b.sleep = func(d time.Duration) {}

	buckets, err := b.Run(context.Background(), hosts)
	if err != nil {
		t.Fatalf("Batch run failed: %v", err)
	}
	return buckets
}

func hostNames(outcomes []models.HostOutcome) []string {
	names := make([]string, len(outcomes))
	for i, o := range outcomes {
		names[i] = o.Host
	}
	return names
}

func TestScenarioAllHostsSucceed(t *testing.T) {
	buckets := runScenario(t, newFakeExecutor(), &selectiveSnapshotter{}, testSettings(),
		targets("h1", "h2", "h3"))

	if got := hostNames(buckets.Succeeded); len(got) != 3 || got[0] != "h1" || got[1] != "h2" || got[2] != "h3" {
		t.Errorf("Expected succeeded=[h1 h2 h3], got %v", got)
	}
	if len(buckets.Skipped) != 0 || len(buckets.Failed) != 0 {
		t.Errorf("Expected empty skipped and failed buckets, got %d and %d",
			len(buckets.Skipped), len(buckets.Failed))
	}
}

func TestScenarioDisabledHostSkipped(t *testing.T) {
	hosts := targets("h1", "h2", "h3")
	hosts[1].Enabled = false

	buckets := runScenario(t, newFakeExecutor(), &selectiveSnapshotter{}, testSettings(), hosts)

	if got := hostNames(buckets.Skipped); len(got) != 1 || got[0] != "h2" {
		t.Fatalf("Expected skipped=[h2], got %v", got)
	}
	if buckets.Skipped[0].Reason != "disabled" {
		t.Errorf("Expected reason %q, got %q", "disabled", buckets.Skipped[0].Reason)
	}
	if got := hostNames(buckets.Succeeded); len(got) != 2 || got[0] != "h1" || got[1] != "h3" {
		t.Errorf("Expected succeeded=[h1 h3], got %v", got)
	}
}

func TestScenarioSnapshotCreationFailure(t *testing.T) {
	exec := newFakeExecutor()
	snaps := &selectiveSnapshotter{failFor: map[string]error{
		"h1-vm": &hypervisor.SnapshotError{Reason: "snapshot creation failed", Err: errors.New("exit 1")},
	}}

	buckets := runScenario(t, exec, snaps, testSettings(), targets("h1", "h2"))

	if got := hostNames(buckets.Failed); len(got) != 1 || got[0] != "h1" {
		t.Fatalf("Expected failed=[h1], got %v", got)
	}
	if buckets.Failed[0].Reason != "snapshot creation failed" {
		t.Errorf("Expected reason %q, got %q", "snapshot creation failed", buckets.Failed[0].Reason)
	}

	// h1's update commands never run; only h2's two commands reach the executor.
	for _, call := range exec.calls {
		if call.Host == "h1.example.com" {
			t.Errorf("Expected no update commands for h1, saw %q", call.Command)
		}
	}
	if len(exec.calls) != 2 {
		t.Errorf("Expected 2 executor calls for h2, got %d", len(exec.calls))
	}
}

func TestScenarioSingleHostSelection(t *testing.T) {
	settings := testSettings()
	settings.Server = "h3"
	snaps := &selectiveSnapshotter{}

	buckets := runScenario(t, newFakeExecutor(), snaps, settings,
		targets("h1", "h2", "h3", "h4", "h5"))

	total := len(buckets.Succeeded) + len(buckets.Skipped) + len(buckets.Failed)
	if total != 1 {
		t.Fatalf("Expected exactly 1 processed host, got %d", total)
	}
	if buckets.Succeeded[0].Host != "h3" {
		t.Errorf("Expected h3 to succeed, got %v", buckets.Succeeded)
	}
	if len(snaps.calls) != 1 || snaps.calls[0] != "h3-vm" {
		t.Errorf("Expected a single snapshot call for h3-vm, got %v", snaps.calls)
	}
}

func TestScenarioDryRunExecutesNothing(t *testing.T) {
	events := eventlog.New()
	dry := sshexec.NewDryRun(events)
	settings := testSettings()
	settings.DryRun = true

	hostRunner := NewHostRunner(dry, &selectiveSnapshotter{}, testHypervisors(), settings, events)
	b := NewBatch(hostRunner, settings, events)

	buckets, err := b.Run(context.Background(), targets("h1", "h2"))
	if err != nil {
		t.Fatalf("Batch run failed: %v", err)
	}

	if got := hostNames(buckets.Succeeded); len(got) != 2 || got[0] != "h1" || got[1] != "h2" {
		t.Fatalf("Expected succeeded=[h1 h2], got %v", got)
	}

	// Every command was recorded, none executed.
	if len(dry.Commands) != 4 {
		t.Errorf("Expected 4 recorded commands, got %d", len(dry.Commands))
	}
}
