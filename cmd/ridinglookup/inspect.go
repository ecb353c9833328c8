package main

import (
	"encoding/json"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
	"github.com/wra-sol/ridingLookup-sub000/internal/config"
	"github.com/wra-sol/ridingLookup-sub000/store"
)

var actorNames = map[string]string{
	"queue":    ridinglookup.QueueCoordinatorName,
	"breakers": ridinglookup.BreakerCoordinatorName,
}

func inspectCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:       "inspect [queue|breakers]",
		Short:     "Dump the persisted state of a coordinator",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"queue", "breakers"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name, ok := actorNames[args[0]]
			if !ok {
				return fmt.Errorf("%w: unknown coordinator %q", ridinglookup.ErrInvalidInput, args[0])
			}

			st, err := store.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DSN, cfg.Store.Prefix)
			if err != nil {
				return err
			}
			defer st.Close()

			raw, err := st.Load(cmd.Context(), name)
			if err != nil {
				return err
			}
			if raw == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing persisted\n", name)
				return nil
			}

			var state map[string]any
			if err := json.Unmarshal(raw, &state); err != nil {
				return fmt.Errorf("decoding %s: %w", name, err)
			}

			spew.Fdump(cmd.OutOrStdout(), state)
			return nil
		},
	}
}
