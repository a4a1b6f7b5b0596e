package main

import (
	"Blogroll/linkgraph/graph"
	"Blogroll/metrics"
	"Blogroll/pagerank"
	"Blogroll/service/rank"
	"fmt"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"io"
)

func newRankCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Compute and store the rank of every known site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, closeFn, err := openGraph(a.cfg.Storage)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			svc, err := newRankService(a, g, nil)
			if err != nil {
				return err
			}

			res, err := svc.RankOnce(cmd.Context())
			if err != nil {
				return err
			}
			if len(res.Scores) == 0 {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "nothing to rank: %d sites, %d edges\n", res.Nodes, res.Edges)
				return err
			}
			return printScores(cmd.OutOrStdout(), g, res.Scores, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sites to print (0 prints all)")
	return cmd
}

func newRankService(a *app, g rank.GraphAPI, m *metrics.Metrics) (*rank.Service, error) {
	cfg := rank.Config{
		GraphAPI: g,
		Calculator: pagerank.Config{
			DampingFactor:  a.cfg.Rank.DampingFactor,
			MaxIterations:  a.cfg.Rank.MaxIterations,
			ComputeWorkers: a.cfg.Rank.ComputeWorkers,
		},
		UpdateInterval: a.cfg.Rank.UpdateInterval,
		Metrics:        m,
		Logger:         a.logger.WithField("component", "rank"),
	}
	return rank.NewService(cfg)
}

func printScores(w io.Writer, g graph.Graph, scores []pagerank.Score, limit int) error {
	if limit > 0 && limit < len(scores) {
		scores = scores[:limit]
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateHeader = false
	t.AppendHeader(table.Row{"#", "SCORE", "URL", "TITLE"})

	for i, score := range scores {
		id, err := uuid.Parse(score.ID)
		if err != nil {
			return err
		}
		link, err := g.FindLink(id)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{i + 1, fmt.Sprintf("%.6f", score.Value), link.URL, link.Title})
	}

	t.Render()
	return nil
}
