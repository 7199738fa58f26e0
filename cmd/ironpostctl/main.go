// Package main — cmd/ironpostctl/main.go
//
// ironpostctl is the operator CLI for ironpost: it starts the daemon,
// queries its control socket, runs one-shot SBOM scans, and inspects
// rule/config files without needing a running daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	output     string
)

func main() {
	root := &cobra.Command{
		Use:   "ironpostctl",
		Short: "Operate the ironpost host-security daemon",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default /etc/ironpost/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override general.log_level")
	root.PersistentFlags().StringVar(&output, "output", "text", "Output format: text or json")

	root.AddCommand(startCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(scanCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
