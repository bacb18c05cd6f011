// Command storefront runs the Fillesumé storefront API and its operator tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commitSHA = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	envFile  string
	logLevel string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "storefront",
		Short:         "Fillesumé storefront API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with STOREFRONT_* overrides")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(flags),
		catalogCmd(flags),
		narrativeCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "storefront %s (%s)\n", version, commitSHA)
			},
		},
	)
	return cmd
}
