package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wra-sol/ridingLookup-sub000/internal/config"
)

func configCmd(cfg *config.Config) *cobra.Command {
	parent := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	parent.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	return parent
}
