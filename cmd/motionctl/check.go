package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"motionbot/internal/commands"
	"motionbot/internal/motion"
	logx "motionbot/pkg/logx"
)

// errNotRunning makes `check` exit 1 without an extra stderr line.
var errNotRunning = errors.New("motion is not running")

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether motion is running (exit 1 when it is not)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(true)
			if err != nil {
				return err
			}
			ctl, err := motion.New(cfg.Motion, logx.Nop())
			if err != nil {
				return err
			}
			if cl, ok := ctl.(motion.Closer); ok {
				defer cl.Close()
			}
			running, err := ctl.Running(cmd.Context())
			if err != nil {
				return fmt.Errorf("check motion: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), commands.ReplyNotRunning)
				return errNotRunning
			}
			fmt.Fprintln(cmd.OutOrStdout(), commands.ReplyRunning)
			return nil
		},
	}
}
