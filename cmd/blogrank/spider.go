package main

import (
	"Blogroll/fetcher"
	"Blogroll/linkgraph/graph"
	"Blogroll/metrics"
	"Blogroll/spider"
	"fmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
	"net/http"
)

func newSpiderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "spider <url>...",
		Short: "Discover sites starting from the given seed URLs",
		Long: `Register each seed URL, follow the link rolls found on the discovered
pages and then record the edges between all known sites.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, closeFn, err := openGraph(a.cfg.Storage)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			sp, err := newSpider(a, g, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			for _, seed := range args {
				if err := sp.SpiderFrom(ctx, seed); err != nil {
					if xerrors.Is(err, fetcher.ErrFetch) {
						a.logger.WithFields(logrus.Fields{
							"url": seed,
							"err": err,
						}).Error("unable to register seed")
						continue
					}
					return err
				}
			}

			edges, err := sp.BuildLinkGraph(ctx)
			if err != nil {
				return err
			}

			stats := sp.Stats()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "discovered %d sites, skipped %d candidates, linked %d edges\n",
				stats.Discovered, stats.Skipped, edges)
			return err
		},
	}
}

func newSpider(a *app, g graph.Graph, m *metrics.Metrics) (*spider.Spider, error) {
	f, err := fetcher.NewHTTPFetcher(fetcher.Config{
		Client:      &http.Client{Timeout: a.cfg.Spider.FetchTimeout},
		MaxBodySize: a.cfg.Spider.MaxBodySize,
		UserAgent:   a.cfg.Spider.UserAgent,
		Logger:      a.logger.WithField("component", "fetcher"),
	})
	if err != nil {
		return nil, err
	}

	return spider.NewSpider(spider.Config{
		Graph:       g,
		Fetcher:     f,
		MaxDepth:    a.cfg.Spider.MaxDepth,
		ScanWorkers: a.cfg.Spider.ScanWorkers,
		Metrics:     m,
		Logger:      a.logger.WithField("component", "spider"),
	})
}
