package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newCorpusCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Inspect the knowledge base",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count chunks per kind and city",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			st := snap.Stats()
			if c.outputJSON {
				return c.ui.JSON(st)
			}

			c.ui.Section("Knowledge base")
			c.ui.KeyValue("Directory", c.cfg.Corpus.Dir)
			c.ui.KeyValue("Chunks", st.Chunks)
			c.ui.KeyValue("Offices", st.Offices)
			c.ui.KeyValue("Critical answers", st.Critical)

			kinds := make([][]string, 0, len(st.ByKind))
			for kind, n := range st.ByKind {
				kinds = append(kinds, []string{string(kind), fmt.Sprint(n)})
			}
			sortRows(kinds)
			c.ui.Section("By kind")
			c.ui.Table([]string{"KIND", "CHUNKS"}, kinds)

			cities := make([][]string, 0, len(st.ByCity))
			for city, n := range st.ByCity {
				cities = append(cities, []string{city, fmt.Sprint(n)})
			}
			sortRows(cities)
			c.ui.Section("By city")
			c.ui.Table([]string{"CITY", "CHUNKS"}, cities)

			for _, name := range st.Skipped {
				c.ui.Warning("skipped %s", name)
			}
			return nil
		},
	})

	return cmd
}

func sortRows(rows [][]string) {
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
}
