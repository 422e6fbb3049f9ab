package main

import (
	"strings"

	"github.com/spf13/cobra"

	"motionbot/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "motionctl",
		Short:         "Motion event notifier and state tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (json, yaml or toml); empty uses BOT_TOKEN/TELEGRAM_ID only")

	rootCmd.AddCommand(newNotifyCommand(ctx))
	rootCmd.AddCommand(newStateCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	return rootCmd
}

type commandContext struct {
	configFlag *string
}

// loadConfig parses the config. offline skips the credential check for
// commands that never talk to Telegram.
func (c *commandContext) loadConfig(offline bool) (*config.Config, error) {
	var path string
	if c.configFlag != nil {
		path = strings.TrimSpace(*c.configFlag)
	}
	m := config.NewManager(path)
	m.SetOffline(offline)
	return m.Parse()
}
