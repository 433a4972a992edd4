package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hupe1980/evalmesh/reporter"
)

func newShowCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore(g.store, g.logger())
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			state, err := st.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}
			return reporter.Summary(cmd.OutOrStdout(), state)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored snapshot as JSON")
	return cmd
}
