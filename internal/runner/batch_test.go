package runner

import (
	"context"
	"testing"
	"time"

	"github.com/patchrun/patchrun/internal/eventlog"
	"github.com/patchrun/patchrun/internal/models"
)

// scriptedRunner returns pre-set outcomes in call order.
type scriptedRunner struct {
	processed []string
	outcomes  map[string]models.HostOutcome
}

func (s *scriptedRunner) Run(ctx context.Context, host models.TargetHost) models.HostOutcome {
	s.processed = append(s.processed, host.Name)
	if o, ok := s.outcomes[host.Name]; ok {
		return o
	}
	return models.HostOutcome{Host: host.Name, Status: models.StatusSucceeded}
}

func targets(names ...string) []models.TargetHost {
	out := make([]models.TargetHost, len(names))
	for i, name := range names {
		out[i] = testHost(name)
	}
	return out
}

func newTestBatch(r HostProcessor, settings models.Settings) (*Batch, *[]time.Duration) {
	b := NewBatch(r, settings, eventlog.New())
	var sleeps []time.Duration
	b.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return b, &sleeps
}

func TestBatchProcessesInListOrder(t *testing.T) {
	r := &scriptedRunner{}
	b, _ := newTestBatch(r, testSettings())

	buckets, err := b.Run(context.Background(), targets("h1", "h2", "h3"))
	if err != nil {
		t.Fatalf("Batch run failed: %v", err)
	}

	want := []string{"h1", "h2", "h3"}
	for i, name := range want {
		if r.processed[i] != name {
			t.Errorf("Expected host %d to be %s, got %s", i, name, r.processed[i])
		}
	}

	if len(buckets.Succeeded) != 3 {
		t.Errorf("Expected 3 succeeded, got %d", len(buckets.Succeeded))
	}
}

func TestBucketsPartitionProcessedHosts(t *testing.T) {
	r := &scriptedRunner{outcomes: map[string]models.HostOutcome{
		"h2": {Host: "h2", Status: models.StatusSkipped, Reason: "disabled"},
		"h4": {Host: "h4", Status: models.StatusFailed, Reason: "update commands failed"},
	}}
	b, _ := newTestBatch(r, testSettings())

	buckets, err := b.Run(context.Background(), targets("h1", "h2", "h3", "h4"))
	if err != nil {
		t.Fatalf("Batch run failed: %v", err)
	}

	total := len(buckets.Succeeded) + len(buckets.Skipped) + len(buckets.Failed)
	if total != 4 {
		t.Fatalf("Expected 4 outcomes total, got %d", total)
	}

	seen := make(map[string]int)
	for _, bucket := range [][]models.HostOutcome{buckets.Succeeded, buckets.Skipped, buckets.Failed} {
		for _, o := range bucket {
			seen[o.Host]++
		}
	}
	for _, name := range []string{"h1", "h2", "h3", "h4"} {
		if seen[name] != 1 {
			t.Errorf("Expected host %s in exactly one bucket, got %d", name, seen[name])
		}
	}
}

func TestInterHostDelay(t *testing.T) {
	settings := testSettings()
	settings.HostDelay = 5 * time.Second
	b, sleeps := newTestBatch(&scriptedRunner{}, settings)

	if _, err := b.Run(context.Background(), targets("h1", "h2", "h3")); err != nil {
		t.Fatalf("Batch run failed: %v", err)
	}

	// Pauses between hosts only, never after the final one.
	if len(*sleeps) != 2 {
		t.Fatalf("Expected 2 pauses, got %d", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != 5*time.Second {
			t.Errorf("Expected 5s pause, got %s", d)
		}
	}
}

func TestNoDelayInDryRun(t *testing.T) {
	settings := testSettings()
	settings.HostDelay = 5 * time.Second
	settings.DryRun = true
	b, sleeps := newTestBatch(&scriptedRunner{}, settings)

	if _, err := b.Run(context.Background(), targets("h1", "h2")); err != nil {
		t.Fatalf("Batch run failed: %v", err)
	}

	if len(*sleeps) != 0 {
		t.Errorf("Expected no pauses in dry-run, got %d", len(*sleeps))
	}
}

func TestServerSelectorRestrictsToOneHost(t *testing.T) {
	r := &scriptedRunner{}
	settings := testSettings()
	settings.Server = "h3"
	b, _ := newTestBatch(r, settings)

	buckets, err := b.Run(context.Background(), targets("h1", "h2", "h3", "h4", "h5"))
	if err != nil {
		t.Fatalf("Batch run failed: %v", err)
	}

	if len(r.processed) != 1 || r.processed[0] != "h3" {
		t.Fatalf("Expected only h3 to be processed, got %v", r.processed)
	}

	total := len(buckets.Succeeded) + len(buckets.Skipped) + len(buckets.Failed)
	if total != 1 {
		t.Errorf("Expected 1 outcome, got %d", total)
	}
}

func TestUnknownServerSelectorFailsBeforeProcessing(t *testing.T) {
	r := &scriptedRunner{}
	settings := testSettings()
	settings.Server = "missing"
	b, _ := newTestBatch(r, settings)

	_, err := b.Run(context.Background(), targets("h1", "h2"))
	if err == nil {
		t.Fatal("Expected error for unknown host selector")
	}
	if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("Expected NotFoundError, got %T", err)
	}
	if len(r.processed) != 0 {
		t.Errorf("Expected no hosts processed, got %v", r.processed)
	}
}
