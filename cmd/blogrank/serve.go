package main

import (
	"Blogroll/metrics"
	"Blogroll/service"
	spidersvc "Blogroll/service/spider"
	"context"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
	"net"
	"net/http"
	"time"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Periodically spider and rank the known sites and export metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, closeFn, err := openGraph(a.cfg.Storage)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			m := metrics.New(reg)
			rankSvc, err := newRankService(a, g, m)
			if err != nil {
				return err
			}

			group := service.Group{
				rankSvc,
				newMetricsServer(
					a.cfg.Metrics.ListenAddr,
					promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
					a.logger.WithField("component", "metrics"),
				),
			}

			if len(a.cfg.Spider.Seeds) != 0 {
				sp, err := newSpider(a, g, m)
				if err != nil {
					return err
				}
				spiderSvc, err := spidersvc.NewService(spidersvc.Config{
					Spider:         sp,
					Seeds:          a.cfg.Spider.Seeds,
					UpdateInterval: a.cfg.Spider.UpdateInterval,
					Logger:         a.logger.WithField("service", "spider"),
				})
				if err != nil {
					return err
				}
				group = append(group, spiderSvc)
			}

			return group.Run(cmd.Context())
		},
	}
}

// metricsServer exposes the prometheus metrics over HTTP.
type metricsServer struct {
	addr   string
	router *mux.Router
	logger *logrus.Entry
}

func newMetricsServer(addr string, handler http.Handler, logger *logrus.Entry) *metricsServer {
	router := mux.NewRouter()
	router.Handle("/metrics", handler).Methods(http.MethodGet)
	return &metricsServer{
		addr:   addr,
		router: router,
		logger: logger,
	}
}

// Name implements service.Service
func (s *metricsServer) Name() string { return "metrics" }

// Run implements service.Service
func (s *metricsServer) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, l)
}

func (s *metricsServer) serve(ctx context.Context, l net.Listener) error {
	defer func() { _ = l.Close() }()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.WithField("addr", l.Addr().String()).Info("serving metrics")
	if err := srv.Serve(l); err != nil && !xerrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
