package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	debug       bool
	metricsAddr string
	workers     int
	title       string
	dir         string
	priority    int
)

var MMSDLVersion = "dev"

var rootCmd = &cobra.Command{
	Use:           "mmsdl",
	Short:         "mmsdl downloads MMS streams and resumes them across runs",
	Version:       MMSDLVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Number of concurrent downloads (default from config)")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newRemoveCmd())
}
