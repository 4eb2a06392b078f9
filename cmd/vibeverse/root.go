package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Muhammad-Alii2/vibeverse/internal/config"
	"github.com/Muhammad-Alii2/vibeverse/internal/logging"
)

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "vibeverse",
		Short:         "Video sharing backend: channels, videos, likes, subscriptions and playlists",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		logging.Setup(os.Stdout, cfg.LogLevel)
		return cfg, nil
	}

	serve := newServeCmd(load)
	root.AddCommand(serve, newMigrateCmd(load))
	root.RunE = serve.RunE
	return root
}
