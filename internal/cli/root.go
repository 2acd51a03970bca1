// Package cli implements the convenience command line: auditing list, enable,
// disable and history, plus version.
//
// Every command loads its configuration through internal/config, so the
// persistent flags below override the config file and DVC_ environment
// variables of the same setting.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "convenience",
		Short:         "Dataverse convenience tools",
		Long:          "Command-line tools for managing Dataverse environments, starting with solution audit settings.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to the config file (default ./config.yaml)")
	flags.String("url", "", "Environment URL, e.g. https://contoso.crm4.dynamics.com")
	flags.String("tenant-id", "", "Entra ID tenant of the application user")
	flags.String("client-id", "", "Application (client) ID")
	flags.String("client-secret", "", "Client secret")
	flags.String("api-version", "", "Web API version (default 9.2)")
	flags.Duration("timeout", 0, "Timeout per Web API request (default 60s)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text, json")
	flags.String("export", "", "Export format: none, json, yaml, csv")
	flags.String("export-dir", "", "Export directory or object key prefix")
	flags.String("export-backend", "", "Export backend: local, s3, azure, gcs")

	rootCmd.AddCommand(newAuditingCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
