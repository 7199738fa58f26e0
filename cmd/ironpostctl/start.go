package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dongwonkwak/ironpost/internal/orchestrator"
)

func startCmd() *cobra.Command {
	var (
		daemonize bool
		pidFile   string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the ironpost daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemonize {
				return startDetached(pidFile)
			}
			return startForeground(pidFile)
		},
	}

	cmd.Flags().BoolVarP(&daemonize, "d", "d", false, "Run in the background and return immediately")
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "Override general.pid_file from config")

	return cmd
}

// startForeground runs the daemon in this process, blocking until
// shutdown. Used both directly and as the re-exec target of -d.
func startForeground(pidFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if pidFile != "" {
		cfg.General.PIDFilePath = pidFile
	}

	log, err := buildLogger(cfg.General.LogLevel, cfg.General.LogFormat)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	orch, err := orchestrator.New(cfg, log)
	if err != nil {
		return fmt.Errorf("orchestrator construction failed: %w", err)
	}

	return orch.Run(context.Background())
}

// startDetached re-execs the current binary with `start` (no -d) in a
// new session, so the daemon survives the controlling terminal hanging
// up, then returns immediately. The child's own orchestrator.Run still
// installs the real PID file; this function doesn't wait for it.
func startDetached(pidFile string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	childArgs := []string{"start"}
	if configPath != "" {
		childArgs = append(childArgs, "-c", configPath)
	}
	if logLevel != "" {
		childArgs = append(childArgs, "--log-level", logLevel)
	}
	if pidFile != "" {
		childArgs = append(childArgs, "--pid-file", pidFile)
	}

	child := exec.Command(self, childArgs...)
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("spawn detached daemon: %w", err)
	}

	fmt.Printf("ironpost started in background (pid %d)\n", child.Process.Pid)
	return child.Process.Release()
}
