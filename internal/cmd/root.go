// Package cmd implements the adsync command line.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"keepersecurity.com/ksm-adsync/adsync"
	"keepersecurity.com/ksm-adsync/internal/style"
)

var (
	configPath string // --config: YAML or TOML configuration file
	verbose    bool   // --verbose: debug logging
)

var rootCmd = &cobra.Command{
	Use:   "adsync",
	Short: "Synchronize a roster file into a directory service",
	Long: `Synchronize an authoritative roster CSV file into Active Directory
or Google Workspace.

Each run provisions missing organizational units, creates accounts for new
people, updates the accounts of people still on the roster, and disables
accounts whose people left the roster.

Configuration is read from the --config file. ADSYNC_* environment variables
override it; a .env file in the working directory is loaded first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "adsync.yaml", "Configuration file (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug messages")
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", style.ErrorPrefix, err)
		return 1
	}
	return 0
}

// loadParameters reads and validates the configuration named by --config.
func loadParameters() (params *adsync.SyncParameters, err error) {
	if params, err = adsync.LoadSyncParameters(configPath); err != nil {
		return
	}
	if verbose {
		params.Verbose = true
	}
	if params.Verbose {
		adsync.GetLogger().SetLevel(logrus.DebugLevel)
	}
	if err = params.Validate(); err != nil {
		params = nil
	}
	return
}
