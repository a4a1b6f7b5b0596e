package main

import (
	"Blogroll/metrics"
	"bytes"
	"context"
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	gc "gopkg.in/check.v1"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var _ = gc.Suite(new(ServeTestSuite))

type ServeTestSuite struct{}

func (s *ServeTestSuite) TestMetricsEndpoint(c *gc.C) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RankPasses.WithLabelValues("ok").Inc()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, gc.IsNil)

	srv := newMetricsServer("", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), discardLogger())
	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()
	doneCh := make(chan error, 1)
	go func() { doneCh <- srv.serve(ctx, l) }()

	baseURL := "http://" + l.Addr().String()
	res, err := http.Get(baseURL + "/metrics")
	c.Assert(err, gc.IsNil)
	body, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	c.Assert(err, gc.IsNil)
	c.Assert(res.StatusCode, gc.Equals, http.StatusOK)
	c.Assert(strings.Contains(string(body), `blogrank_rank_passes_total{status="ok"} 1`), gc.Equals, true)

	res, err = http.Post(baseURL+"/metrics", "text/plain", nil)
	c.Assert(err, gc.IsNil)
	_ = res.Body.Close()
	c.Assert(res.StatusCode, gc.Equals, http.StatusMethodNotAllowed)

	res, err = http.Get(baseURL + "/")
	c.Assert(err, gc.IsNil)
	_ = res.Body.Close()
	c.Assert(res.StatusCode, gc.Equals, http.StatusNotFound)

	cancel()
	select {
	case err := <-doneCh:
		c.Assert(err, gc.IsNil)
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for metrics server to exit")
	}
}

func (s *ServeTestSuite) TestMetricsServerListenError(c *gc.C) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, gc.IsNil)
	defer func() { _ = l.Close() }()

	srv := newMetricsServer(l.Addr().String(), http.NotFoundHandler(), discardLogger())
	c.Assert(srv.Run(context.TODO()), gc.NotNil)
}

func (s *ServeTestSuite) TestServeCommandStopsOnCancel(c *gc.C) {
	dir := c.MkDir()
	configPath := filepath.Join(dir, "blogrank.yaml")
	cfg := fmt.Sprintf("storage:\n  driver: sqlite\n  dsn: %s\nmetrics:\n  listen_addr: 127.0.0.1:0\nlog:\n  level: error\n",
		filepath.Join(dir, "blogrank.db"))
	c.Assert(os.WriteFile(configPath, []byte(cfg), 0o600), gc.IsNil)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", configPath, "serve"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()
	doneCh := make(chan error, 1)
	go func() { doneCh <- cmd.ExecuteContext(ctx) }()

	<-time.After(200 * time.Millisecond)
	cancel()
	select {
	case err := <-doneCh:
		c.Assert(err, gc.IsNil)
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for serve to exit")
	}
}

func discardLogger() *logrus.Entry {
	return logrus.NewEntry(&logrus.Logger{Out: io.Discard})
}
