package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"motionbot/internal/app"
	logx "motionbot/pkg/logx"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Handle one motion event (use as motion's on_event_start)",
		Long: "Sends the alert text and the newest photo to the configured chat unless another\n" +
			"invocation holds the lock, the cooldown is active or the photo was already sent.\n" +
			"Only configuration errors make it exit non-zero.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(false)
			if err != nil {
				return err
			}
			logs, log := logx.New(app.GateLogConfig(cfg), nil)
			defer logs.Close()
			log = log.With(logx.String("comp", "motionctl.notify"))

			rt, err := app.BuildGate(cfg, log)
			if err != nil {
				log.Error("gate setup failed", logx.Err(err))
				return err
			}
			defer rt.Close()

			// The gate logs the outcome itself.
			out := rt.Notify(cmd.Context())
			if verbose {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the outcome to stdout")
	return cmd
}
