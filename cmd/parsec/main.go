package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "parsec",
		Short: "Parsec - a distributed-memory parallel task runtime",
		Long:  "A work-stealing distributed task runtime: a Par monad over single-assignment cells, serializable closures, and a FISH/SCHEDULE scheduler, in the style of Glasgow's HdpH.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, PARSEC_* environment variables override)")

	rootCmd.AddCommand(
		nodeCmd(),
		runCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
