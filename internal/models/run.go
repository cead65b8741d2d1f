package models

import "time"

type Settings struct {
	SnapshotName          string
	ConnectTimeout        time.Duration
	CommandTimeout        time.Duration
	RebootTimeout         time.Duration
	SnapshotDeleteTimeout time.Duration
	SnapshotCreateTimeout time.Duration
	HostDelay             time.Duration
	LogDir                string

	// Display truncation for long command output. Output beyond
	// TruncateAfter lines is shown as the first TruncateHead plus the
	// last TruncateTail lines; the full output still goes to the run log.
	TruncateAfter int
	TruncateHead  int
	TruncateTail  int

	Server        string
	DryRun        bool
	SkipSnapshots bool
	SkipUpdates   bool
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// HostOutcome is the terminal result for one processed host. Created exactly
// once when the host finishes and never mutated afterwards.
type HostOutcome struct {
	Host   string `json:"host"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Buckets partitions processed hosts by outcome in processing order.
type Buckets struct {
	Succeeded []HostOutcome
	Skipped   []HostOutcome
	Failed    []HostOutcome
}

func (b *Buckets) Add(o HostOutcome) {
	switch o.Status {
	case StatusSucceeded:
		b.Succeeded = append(b.Succeeded, o)
	case StatusSkipped:
		b.Skipped = append(b.Skipped, o)
	default:
		b.Failed = append(b.Failed, o)
	}
}

// RunnerInfo describes the machine the run was executed from.
type RunnerInfo struct {
	Hostname      string `json:"hostname"`
	Platform      string `json:"platform"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// RunReport is built once after the batch loop completes.
type RunReport struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	DryRun      bool          `json:"dry_run"`
	Succeeded   []HostOutcome `json:"succeeded"`
	Skipped     []HostOutcome `json:"skipped"`
	Failed      []HostOutcome `json:"failed"`
	LogPath     string        `json:"log_path,omitempty"`
	SummaryPath string        `json:"summary_path,omitempty"`
	Runner      RunnerInfo    `json:"runner"`
}
