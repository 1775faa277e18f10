package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/app"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/pipeline"
)

func newAskCmd(c *cli) *cobra.Command {
	var (
		sessionID string
		city      string
		area      string
		vehicle   string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question through the full pipeline",
		Long: `Ask runs one conversational turn in-process: entity extraction, retrieval,
generation and booking links. Pass --session to continue a conversation
within the same process; --city, --area and --vehicle seed a new session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), c.cfg.Server.RequestTimeout)
			defer cancel()

			a, err := app.New(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			stop := c.ui.Spinner("Tänker...")
			resp, err := a.Pipeline.Handle(ctx, pipeline.Request{
				Query:        strings.Join(args, " "),
				SessionID:    sessionID,
				SavedCity:    city,
				SavedArea:    area,
				SavedVehicle: vehicle,
			})
			stop()
			if err != nil && resp == nil {
				return fmt.Errorf("ask: %w", err)
			}

			if c.outputJSON {
				return c.ui.JSON(resp)
			}

			c.ui.Text(resp.Answer)
			if err != nil {
				c.ui.Warning("%v", err)
			}
			if c.verbose && resp.Debug != nil {
				printDebug(c.ui, resp)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&city, "city", "", "saved city for a new session")
	cmd.Flags().StringVar(&area, "area", "", "saved area for a new session")
	cmd.Flags().StringVar(&vehicle, "vehicle", "", "saved vehicle class for a new session")

	return cmd
}

func printDebug(ui *UI, resp *pipeline.Response) {
	d := resp.Debug
	ui.Section("Debug")
	ui.KeyValue("Session", resp.SessionID)
	ui.KeyValue("Intent", d.NLU.Intent)
	ui.KeyValue("Mode", fmt.Sprintf("%s (%s)", d.Mode, d.ModeReason))
	ui.KeyValue("Locked", fmt.Sprintf("%s / %s / %s", resp.LockedContext.City, resp.LockedContext.Area, resp.LockedContext.Vehicle))
	ui.KeyValue("Rules", strings.Join(d.Rules, ", "))
	if d.FallbackID != "" {
		ui.KeyValue("Fallback", d.FallbackID)
	}
	if d.LowConfidence {
		ui.KeyValue("Best score", fmt.Sprintf("%.3f", d.BestScore))
	}

	rows := make([][]string, 0, len(resp.Context))
	for i, item := range resp.Context {
		rows = append(rows, []string{fmt.Sprint(i + 1), item.Type, item.City, fmt.Sprintf("%.1f", item.Score), item.Title})
	}
	if len(rows) > 0 {
		ui.Section("Context")
		ui.Table([]string{"#", "TYPE", "CITY", "SCORE", "TITLE"}, rows)
	}
}
