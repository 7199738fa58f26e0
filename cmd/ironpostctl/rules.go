package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
	"github.com/dongwonkwak/ironpost/internal/ruleengine"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect detection rules",
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesValidateCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded detection rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			rules, err := ruleengine.LoadRules(cfg.General.RulesDir)
			if err != nil {
				return fmt.Errorf("load rules: %w", err)
			}

			var filtered []*ironcore.DetectionRule
			for _, r := range rules {
				if statusFilter != "" && string(r.Status) != statusFilter {
					continue
				}
				filtered = append(filtered, r)
			}

			if output == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(filtered)
			}

			for _, r := range filtered {
				fmt.Printf("%-24s %-10s %-8s %s\n", r.ID, r.Status, r.Severity, r.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status: enabled, disabled, test")
	return cmd
}

func rulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [PATH]",
		Short: "Validate a rule directory without running the daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			dir := cfg.General.RulesDir
			if len(args) == 1 {
				dir = args[0]
			}

			rules, err := ruleengine.LoadRules(dir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s: %d rules valid\n", dir, len(rules))
			return nil
		},
	}
}
