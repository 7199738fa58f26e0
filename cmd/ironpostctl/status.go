package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dongwonkwak/ironpost/internal/controlsock"
)

const statusQueryTimeout = 5 * time.Second

func statusCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print daemon health and per-module state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			resp, err := controlsock.QueryStatus(cfg.General.ControlSocketPath, statusQueryTimeout)
			if err != nil {
				return fmt.Errorf("query daemon status: %w", err)
			}

			if output == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			fmt.Printf("uptime: %s\n", time.Duration(resp.UptimeSecs*float64(time.Second)).Round(time.Second))
			for _, m := range resp.Modules {
				line := fmt.Sprintf("%-18s %-12s healthy=%v", m.Name, m.State, m.Healthy)
				if m.Degraded {
					line += fmt.Sprintf(" degraded=%v", m.Degraded)
				}
				if verbose && m.Reason != "" {
					line += fmt.Sprintf(" reason=%q", m.Reason)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "v", "v", false, "Include per-module degradation reasons")
	return cmd
}
