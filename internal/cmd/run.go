package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"keepersecurity.com/ksm-adsync/adsync"
	"keepersecurity.com/ksm-adsync/internal/style"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one synchronization",
	Long: `Run one synchronization of the roster into the directory.

Only one run may hold the lock file at a time; a second invocation fails
instead of racing the first.

Examples:
  adsync run --config adsync.yaml
  adsync run --config adsync.toml --dry-run   # report changes without applying them`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runDryRun   bool   // --dry-run: report mutations instead of applying them
	runLockFile string // --lock-file: path of the exclusive run lock
)

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Report changes without applying them")
	runCmd.Flags().StringVar(&runLockFile, "lock-file", filepath.Join(os.TempDir(), "adsync.lock"), "Lock file held while the run is in progress")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	params, err := loadParameters()
	if err != nil {
		return err
	}
	if runDryRun {
		params.DryRun = true
	}

	lock := flock.New(runLockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock %s: %w", runLockFile, err)
	}
	if !locked {
		return fmt.Errorf("another synchronization holds %s", runLockFile)
	}
	defer func() { _ = lock.Unlock() }()

	directory, err := adsync.OpenDirectory(params)
	if err != nil {
		return err
	}
	defer func() { _ = adsync.CloseDirectory(directory) }()

	syncStat, err := adsync.NewAdSync(directory, params).Sync(cmd.Context())
	if err != nil {
		return err
	}

	var actions []string
	if dr, ok := directory.(*adsync.DryRunEndpoint); ok {
		actions = dr.Actions()
	}
	printSummary(cmd.OutOrStdout(), syncStat, actions)
	if len(syncStat.Failures) > 0 {
		return fmt.Errorf("%d account operation(s) failed", len(syncStat.Failures))
	}
	return nil
}

func printSummary(w io.Writer, syncStat *adsync.SyncStat, dryRunActions []string) {
	var section = func(prefix string, title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(w, "%s %s (%d)\n", prefix, style.Bold.Render(title), len(lines))
		for _, txt := range lines {
			fmt.Fprintf(w, "    %s\n", txt)
		}
	}
	section(style.SuccessPrefix, "Organizational units created", syncStat.CreatedOUs)
	section(style.SuccessPrefix, "Users created", syncStat.CreatedUsers)
	section(style.SuccessPrefix, "Users updated", syncStat.UpdatedUsers)
	section(style.SuccessPrefix, "Users disabled", syncStat.DisabledUsers)
	section(style.WarningPrefix, "Moves skipped, organizational unit not found", syncStat.SkippedMoves)

	if len(syncStat.Failures) > 0 {
		var lines = make([]string, 0, len(syncStat.Failures))
		for _, f := range syncStat.Failures {
			lines = append(lines, fmt.Sprintf("%s %s: %v", f.Action, f.UniqueId, f.Err))
		}
		section(style.ErrorPrefix, "Failures", lines)
	}
	if len(dryRunActions) > 0 {
		section(style.DryRunPrefix, "Dry run, changes not applied", dryRunActions)
	}
}
