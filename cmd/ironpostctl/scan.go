package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
	"github.com/dongwonkwak/ironpost/internal/sbomscanner"
)

func scanCmd() *cobra.Command {
	var (
		minSeverity string
		sbomFormat  string
	)

	cmd := &cobra.Command{
		Use:   "scan [PATH]",
		Short: "Run a one-shot SBOM scan and report vulnerability findings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			dir := "."
			if len(cfg.SBOM.ScanPaths) > 0 {
				dir = cfg.SBOM.ScanPaths[0]
			}
			if len(args) == 1 {
				dir = args[0]
			}

			minSevLabel := minSeverity
			if minSevLabel == "" {
				minSevLabel = cfg.SBOM.MinSeverity
			}
			minSev, err := ironcore.ParseSeverity(minSevLabel)
			if err != nil {
				return fmt.Errorf("invalid --min-severity %q: %w", minSevLabel, err)
			}

			log, err := buildLogger(cfg.General.LogLevel, cfg.General.LogFormat)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync() //nolint:errcheck

			alertCh := make(chan ironcore.AlertEvent, 4096)
			scanner := sbomscanner.NewBuilder(sbomscanner.Config{
				ScanPaths:  cfg.SBOM.ScanPaths,
				VulnDBPath: cfg.SBOM.VulnDBPath,
			}, log, alertCh).Build()

			ctx := context.Background()
			if err := scanner.Init(ctx); err != nil {
				return fmt.Errorf("scanner init: %w", err)
			}

			doc, err := scanner.Scan(ctx, dir)
			if err != nil {
				return fmt.Errorf("scan %q: %w", dir, err)
			}

			var findings []ironcore.AlertEvent
			close(alertCh)
			for ev := range alertCh {
				if ev.Severity >= minSev {
					findings = append(findings, ev)
				}
			}

			if sbomFormat == "json" || output == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(map[string]any{
					"scan_path":    dir,
					"packages":     len(doc.Packages),
					"findings":     findings,
					"min_severity": minSevLabel,
				})
			} else {
				fmt.Printf("scanned %s: %d packages, %d findings at or above %s\n", dir, len(doc.Packages), len(findings), minSevLabel)
				for _, f := range findings {
					fmt.Printf("  [%s] %s: %s\n", f.Severity, f.Alert.Title, f.Alert.Description)
				}
			}

			if len(findings) > 0 {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&minSeverity, "min-severity", "", "Suppress findings below this severity (default from config)")
	cmd.Flags().StringVar(&sbomFormat, "sbom-format", "text", "Output format: text or json")

	return cmd
}
