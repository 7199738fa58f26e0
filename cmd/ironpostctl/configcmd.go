package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect daemon configuration",
	}
	cmd.AddCommand(configValidateCmd())
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config file, reporting every violation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s: valid\n", resolveConfigPath())
			return nil
		},
	}
}

func configShowCmd() *cobra.Command {
	var section string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config, after file and environment overlays",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var v any = cfg
			switch section {
			case "":
			case "general":
				v = cfg.General
			case "ebpf":
				v = cfg.EBPF
			case "log_pipeline":
				v = cfg.LogPipeline
			case "container":
				v = cfg.Container
			case "sbom":
				v = cfg.SBOM
			case "metrics":
				v = cfg.Metrics
			default:
				return fmt.Errorf("unknown section %q", section)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}

	cmd.Flags().StringVar(&section, "section", "", "Show only one section: general, ebpf, log_pipeline, container, sbom, metrics")
	return cmd
}
