package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore(g.store, g.logger())
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			runs, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No runs stored.")
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Run", "Experiment", "Status", "Cases", "Pass Rate", "Started", "Duration"})
			t.SetColumnConfigs([]table.ColumnConfig{
				{Name: "Cases", Align: text.AlignRight},
				{Name: "Pass Rate", Align: text.AlignRight},
				{Name: "Duration", Align: text.AlignRight},
			})
			for _, r := range runs {
				passRate := "-"
				if r.Metrics != nil {
					passRate = fmt.Sprintf("%.1f%%", r.Metrics.PassRate*100)
				}
				t.AppendRow(table.Row{
					r.ID, r.Experiment.Name, r.Status, r.Total, passRate,
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Duration().Round(time.Millisecond).String(),
				})
			}
			t.Render()
			return nil
		},
	}
}
