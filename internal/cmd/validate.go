package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"keepersecurity.com/ksm-adsync/internal/style"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and the roster file",
	Long: `Load the configuration, validate it, and read the roster file
without contacting the directory service.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	params, err := loadParameters()
	if err != nil {
		return err
	}
	roster, err := params.Roster()
	if err != nil {
		return err
	}
	var backend = "Active Directory"
	if params.Directory.Google != nil {
		backend = "Google Workspace"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s is valid\n", style.SuccessPrefix, configPath)
	fmt.Fprintf(out, "  %s %s\n", style.Bold.Render("Directory:"), backend)
	fmt.Fprintf(out, "  %s %s\n", style.Bold.Render("Domain:"), params.Domain)
	fmt.Fprintf(out, "  %s %d record(s)\n", style.Bold.Render("Roster:"), len(roster))
	return nil
}
