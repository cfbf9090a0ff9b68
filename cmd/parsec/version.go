package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...". It
// stays "dev" for local builds.
var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the parsec version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("parsec " + version)
			return nil
		},
	}
}
