package main

import (
	"github.com/spf13/cobra"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
	"github.com/wra-sol/ridingLookup-sub000/internal/config"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		cfg        *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "ridinglookup",
		Short:         "Riding lookup API with durable batch processing",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := loaded.Log.Logger()
			if err != nil {
				return err
			}
			ridinglookup.SetLogger(logger)

			*cfg = *loaded
			return nil
		},
	}

	cfg = &config.Config{}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (yaml, json or toml)")

	rootCmd.AddCommand(serveCmd(cfg))
	rootCmd.AddCommand(processCmd(cfg))
	rootCmd.AddCommand(inspectCmd(cfg))
	rootCmd.AddCommand(configCmd(cfg))

	return rootCmd
}
