package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dashjoin/internal/daemon"
)

func newStopCommand(ctx *commandContext) *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			pid, err := daemon.SignalStop(cfg)
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Fprintln(out, "dashjoin is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Sent stop signal to dashjoin (pid %d)\n", pid)
			if !wait {
				return nil
			}

			deadline := time.Now().Add(timeout)
			for {
				held, err := daemon.LockHeld(cfg.LockPath())
				if err != nil {
					return err
				}
				if !held {
					fmt.Fprintln(out, "Session stopped")
					return nil
				}
				if time.Now().After(deadline) {
					return fmt.Errorf("session still running after %s; in-flight merges may still be finishing", timeout)
				}
				time.Sleep(250 * time.Millisecond)
			}
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the session to exit")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "How long --wait waits")
	return cmd
}
