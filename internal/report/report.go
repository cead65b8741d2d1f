package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/patchrun/patchrun/internal/models"
)

// Summarize builds the immutable run report from the orchestrator's buckets.
func Summarize(buckets *models.Buckets, started, finished time.Time, dryRun bool) *models.RunReport {
	return &models.RunReport{
		ID:         uuid.New().String(),
		StartedAt:  started,
		FinishedAt: finished,
		DryRun:     dryRun,
		Succeeded:  buckets.Succeeded,
		Skipped:    buckets.Skipped,
		Failed:     buckets.Failed,
		Runner:     CollectRunnerInfo(),
	}
}

// ExitCode is 0 only when no host ended in the failed bucket.
func ExitCode(r *models.RunReport) int {
	if len(r.Failed) > 0 {
		return 1
	}
	return 0
}

var (
	successHeading = color.New(color.FgGreen, color.Bold)
	skippedHeading = color.New(color.FgYellow, color.Bold)
	failedHeading  = color.New(color.FgRed, color.Bold)
)

// Render writes the human-readable summary grouped by bucket.
func Render(w io.Writer, r *models.RunReport) error {
	fmt.Fprintf(w, "\nRun %s\n", r.ID)
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Finished: %s\n", r.FinishedAt.Format("2006-01-02 15:04:05"))
	if r.DryRun {
		fmt.Fprintln(w, "Mode:     dry-run")
	}
	fmt.Fprintln(w)

	renderBucket(w, successHeading, "Succeeded", r.Succeeded)
	renderBucket(w, skippedHeading, "Skipped", r.Skipped)
	renderBucket(w, failedHeading, "Failed", r.Failed)

	total := len(r.Succeeded) + len(r.Skipped) + len(r.Failed)
	fmt.Fprintf(w, "%d hosts processed: %d succeeded, %d skipped, %d failed\n",
		total, len(r.Succeeded), len(r.Skipped), len(r.Failed))
	if len(r.Failed) > 0 {
		fmt.Fprintln(w, "Manual intervention required for failed hosts.")
	}
	return nil
}

func renderBucket(w io.Writer, heading *color.Color, title string, outcomes []models.HostOutcome) {
	heading.Fprintf(w, "%s (%d)\n", title, len(outcomes))
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "  none")
		fmt.Fprintln(w)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, o := range outcomes {
		if o.Reason != "" {
			fmt.Fprintf(tw, "  %s\t%s\n", o.Host, o.Reason)
		} else {
			fmt.Fprintf(tw, "  %s\t\n", o.Host)
		}
	}
	tw.Flush()
	fmt.Fprintln(w)
}

// WriteSummary persists the rendered summary as a timestamped artifact under
// dir and records its path on the report.
func WriteSummary(dir string, r *models.RunReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("summary-%s.txt", r.StartedAt.Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer f.Close()

	if err := renderPlain(f, r); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	r.SummaryPath = path
	return nil
}

func renderPlain(w io.Writer, r *models.RunReport) error {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()
	return Render(w, r)
}
