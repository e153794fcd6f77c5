// Package cli implements the wayfarer command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wayfarerhq/wayfarer/internal/config"
	"github.com/wayfarerhq/wayfarer/internal/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// SetupRootCmd builds the root command tree around a loaded configuration.
func SetupRootCmd(cfg *config.Config) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "wayfarer",
		Short: "Wayfarer is a local agent with a web chat UI and scheduled tasks",
		Long: `Wayfarer runs an AI agent on your machine: chat with it in the browser,
give it file, shell, and web access inside a workspace directory, and
schedule unattended tasks with cron expressions.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logging.SetVerbose(true)
			} else {
				logging.Disable()
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			runServe(cfg)
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().IntVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	root.PersistentFlags().StringVar(&cfg.Workspace, "workspace", cfg.Workspace, "agent workspace directory")

	root.AddCommand(serveCmd(cfg))
	root.AddCommand(jobsCmd(cfg))
	root.AddCommand(versionCmd())

	return root
}

func serveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server and agent",
		Run: func(cmd *cobra.Command, args []string) {
			runServe(cfg)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wayfarer %s\n", Version)
		},
	}
}
