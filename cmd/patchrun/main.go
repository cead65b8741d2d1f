package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/patchrun/patchrun/internal/config"
	"github.com/patchrun/patchrun/internal/eventlog"
	"github.com/patchrun/patchrun/internal/history"
	"github.com/patchrun/patchrun/internal/hypervisor"
	"github.com/patchrun/patchrun/internal/inventory"
	"github.com/patchrun/patchrun/internal/models"
	"github.com/patchrun/patchrun/internal/report"
	"github.com/patchrun/patchrun/internal/runner"
	"github.com/patchrun/patchrun/internal/sshexec"
)

var (
	// Build-time variables (set via -ldflags)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	configPath    string
	serverName    string
	dryRun        bool
	skipSnapshots bool
	skipUpdates   bool
	historyDB     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "patchrun",
	Short: "Orchestrate patch maintenance windows across virtualized servers",
	Long: `patchrun performs one linear maintenance pass over a fleet of virtual
machines: for each enabled target it reconciles a pre-patch snapshot on the
hypervisor, runs the configured update commands over SSH, and records the
per-host outcome. The exit status is non-zero when any host failed.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMaintenance()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("patchrun %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildTime)
	},
}

func init() {
	defaultDB := os.Getenv("PATCHRUN_DB")
	if defaultDB == "" {
		defaultDB = "~/.patchrun/history.db"
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&historyDB, "db", defaultDB, "Path to the run history database (PATCHRUN_DB)")
	rootCmd.Flags().StringVar(&serverName, "server", "", "Restrict the run to a single configured host")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report commands without executing them")
	rootCmd.Flags().BoolVar(&skipSnapshots, "skip-snapshots", false, "Skip the snapshot phase on every host")
	rootCmd.Flags().BoolVar(&skipUpdates, "skip-updates", false, "Skip the update phase on every host")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(historyCmd)
}

func runMaintenance() error {
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	settings := cfg.Settings
	settings.Server = serverName
	settings.DryRun = dryRun
	settings.SkipSnapshots = skipSnapshots
	settings.SkipUpdates = skipUpdates

	started := time.Now()

	fileSink, err := eventlog.NewFileSink(settings.LogDir, started)
	if err != nil {
		return err
	}
	defer fileSink.Close()

	console := eventlog.NewConsoleSink(os.Stdout)
	console.LimitOutput(settings.TruncateAfter, settings.TruncateHead, settings.TruncateTail)

	events := eventlog.New(console, fileSink)

	var exec sshexec.Executor
	if settings.DryRun {
		exec = sshexec.NewDryRun(events)
	} else {
		exec = sshexec.NewClient(settings.ConnectTimeout)
	}

	snapshots := hypervisor.NewManager(exec, settings.SnapshotDeleteTimeout, settings.SnapshotCreateTimeout)
	hostRunner := runner.NewHostRunner(exec, snapshots, cfg.Hypervisors, settings, events)
	batch := runner.NewBatch(hostRunner, settings, events)

	ctx := context.Background()

	targets, err := loadTargets(ctx, cfg)
	if err != nil {
		return err
	}

	buckets, err := batch.Run(ctx, targets)
	if err != nil {
		return err
	}

	rep := report.Summarize(buckets, started, time.Now(), settings.DryRun)
	rep.LogPath = fileSink.Path()

	if err := report.WriteSummary(settings.LogDir, rep); err != nil {
		log.Printf("Warning: failed to write summary artifact: %v", err)
	}

	report.Render(os.Stdout, rep)
	fmt.Printf("Run log: %s\n", rep.LogPath)
	if rep.SummaryPath != "" {
		fmt.Printf("Summary: %s\n", rep.SummaryPath)
	}

	recordRun(rep)

	if report.ExitCode(rep) != 0 {
		return fmt.Errorf("%d host(s) failed, manual intervention required", len(rep.Failed))
	}
	return nil
}

func loadTargets(ctx context.Context, cfg *config.Config) ([]models.TargetHost, error) {
	var source inventory.Source = inventory.NewStatic(cfg.Hosts)
	if cfg.Consul != nil {
		consulSource, err := inventory.NewConsul(*cfg.Consul)
		if err != nil {
			return nil, err
		}
		source = consulSource
	}
	return source.Targets(ctx)
}

func recordRun(rep *models.RunReport) {
	path, err := homedir.Expand(historyDB)
	if err != nil {
		log.Printf("Warning: failed to resolve history db path: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("Warning: failed to create history db dir: %v", err)
		return
	}

	db, err := history.NewDB(path)
	if err != nil {
		log.Printf("Warning: failed to open history db: %v", err)
		return
	}
	defer db.Close()

	if err := db.RecordRun(rep); err != nil {
		log.Printf("Warning: failed to record run: %v", err)
	}
}
