package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/app"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/config"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/contextlock"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/intent"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/retrieval"
)

// searchOutput is the --json shape of the search command.
type searchOutput struct {
	Query         string              `json:"query"`
	Augmented     string              `json:"augmented_query"`
	Intent        intent.Intent       `json:"intent"`
	Locked        contextlock.Context `json:"locked_context"`
	Rules         []string            `json:"rules"`
	Emergency     string              `json:"emergency,omitempty"`
	LowConfidence bool                `json:"low_confidence"`
	BestScore     float64             `json:"best_score"`
	Tokens        int                 `json:"tokens"`
	Chunks        []searchChunk       `json:"chunks"`
}

type searchChunk struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Tier   string            `json:"tier"`
	Score  float64           `json:"score"`
	Forced bool              `json:"forced"`
	Boosts []retrieval.Boost `json:"boosts,omitempty"`
}

func newSearchCmd(c *cli) *cobra.Command {
	var (
		city    string
		area    string
		vehicle string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the ranked chunks for a query without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			snap, err := loadSnapshot(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			router, err := retrieval.NewRouter(c.logger, app.RouterConfig(c.cfg.Retrieval))
			if err != nil {
				return err
			}

			saved := contextlock.Context{City: intent.CanonicalCity(city), Area: area, Vehicle: strings.ToUpper(vehicle)}
			parsed := intent.NewParser(snap.Cities(), snap.Areas()).Parse(query, intent.Slots{City: saved.City, Area: saved.Area, Vehicle: saved.Vehicle})
			parsed = intent.ForceWeather(parsed, query)
			locked := contextlock.Resolve(saved, contextlock.Context{
				City:    firstNonEmpty(parsed.Extracted.City, saved.City),
				Area:    parsed.Extracted.Area,
				Vehicle: parsed.Extracted.Vehicle,
			})

			resp, err := router.Query(ctx, retrieval.RetrievalRequest{
				Snapshot: snap,
				Query:    query,
				Parsed:   parsed,
				Locked:   locked,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			out := buildSearchOutput(query, parsed, locked, resp)
			if c.outputJSON {
				return c.ui.JSON(out)
			}
			printSearch(c.ui, out, c.verbose)
			return nil
		},
	}

	cmd.Flags().StringVar(&city, "city", "", "locked city")
	cmd.Flags().StringVar(&area, "area", "", "locked area")
	cmd.Flags().StringVar(&vehicle, "vehicle", "", "locked vehicle class")

	return cmd
}

func buildSearchOutput(query string, parsed intent.Result, locked contextlock.Context, resp *retrieval.RetrievalResponse) searchOutput {
	out := searchOutput{
		Query:  query,
		Intent: parsed.Intent,
		Locked: locked,
		Rules:  resp.ForceAdd.Fired,
		Chunks: []searchChunk{},
	}
	if resp.Search != nil {
		out.Augmented = resp.Search.Query
	}
	if resp.Emergency != nil {
		out.Emergency = resp.Emergency.ID
	}
	if a := resp.Assembly; a != nil {
		out.LowConfidence = a.LowConfidence
		out.BestScore = a.BestScore
		out.Tokens = a.Tokens
		for _, sc := range a.Chunks {
			out.Chunks = append(out.Chunks, searchChunk{
				ID:     sc.Chunk.ID,
				Title:  sc.Chunk.Title,
				Tier:   sc.Tier.String(),
				Score:  sc.Score,
				Forced: sc.Forced,
				Boosts: sc.Boosts,
			})
		}
	}
	return out
}

func printSearch(ui *UI, out searchOutput, verbose bool) {
	ui.Section("Query")
	ui.KeyValue("Intent", out.Intent)
	ui.KeyValue("Locked", fmt.Sprintf("%s / %s / %s", out.Locked.City, out.Locked.Area, out.Locked.Vehicle))
	ui.KeyValue("Rules", strings.Join(out.Rules, ", "))
	if verbose {
		ui.KeyValue("Augmented", out.Augmented)
	}

	if out.Emergency != "" {
		ui.Warning("critical answer %s would be returned", out.Emergency)
		return
	}
	if out.LowConfidence {
		ui.Warning("low confidence (best score %.3f), the user would be asked for details", out.BestScore)
	}

	ui.Section(fmt.Sprintf("Chunks (%d, ~%d tokens)", len(out.Chunks), out.Tokens))
	rows := make([][]string, 0, len(out.Chunks))
	for i, ch := range out.Chunks {
		boosts := make([]string, 0, len(ch.Boosts))
		for _, b := range ch.Boosts {
			boosts = append(boosts, fmt.Sprintf("%s%+.0f", b.Name, b.Delta))
		}
		rows = append(rows, []string{fmt.Sprint(i + 1), ch.Tier, fmt.Sprintf("%.2f", ch.Score), ch.ID, strings.Join(boosts, " ")})
	}
	ui.Table([]string{"#", "TIER", "SCORE", "ID", "BOOSTS"}, rows)
}

func loadSnapshot(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*corpus.Snapshot, error) {
	loader := corpus.NewLoader(cfg.Corpus.Dir, logger, corpus.IndexOptions{FuzzyRatio: cfg.Retrieval.FuzzyRatio})
	snap, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return snap, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
