package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/pricing"
)

func newPriceCmd(c *cli) *cobra.Command {
	var req pricing.Request

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Resolve the price of a service",
		Long: `Price looks the service up at the given office, then takes the median of
the city, then the median of every office.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			quote, err := pricing.NewResolver(snap).Resolve(req)
			if err != nil {
				return fmt.Errorf("price %q: %w", req.Service, err)
			}
			if c.outputJSON {
				return c.ui.JSON(quote)
			}

			c.ui.Success("%s: %s kr (%s)", quote.Service, corpus.FormatAmount(quote.Amount), quote.Source)
			rows := make([][]string, 0, len(quote.Matches))
			for _, m := range quote.Matches {
				rows = append(rows, []string{m.Office, m.Service, corpus.FormatAmount(m.Amount)})
			}
			c.ui.Table([]string{"OFFICE", "SERVICE", "SEK"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Service, "service", "", "service name, e.g. \"Körlektion BIL\"")
	cmd.Flags().StringVar(&req.City, "city", "", "city")
	cmd.Flags().StringVar(&req.Office, "office", "", "office id, name or area")
	_ = cmd.MarkFlagRequired("service")

	return cmd
}
