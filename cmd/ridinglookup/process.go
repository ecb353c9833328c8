package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wra-sol/ridingLookup-sub000/internal/config"
)

func processCmd(cfg *config.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Promote due retries, process up to --max jobs once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			promoted, err := a.queue.PromoteDue(ctx)
			if err != nil {
				return err
			}

			outcomes, err := a.queue.ProcessNext(ctx, limit)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(map[string]any{
				"promoted":  promoted,
				"processed": len(outcomes),
				"results":   outcomes,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "max", 10, "maximum number of jobs to process")
	return cmd
}
