package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons for skipping a candidate link while spidering.
const (
	SkipMalformed = "malformed"
	SkipFetch     = "fetch"
	SkipDuplicate = "duplicate"
	SkipStore     = "store"
)

// Metrics bundles the collectors exported by the spider and the ranking
// service.
type Metrics struct {
	LinksDiscovered prometheus.Counter
	LinksSkipped    *prometheus.CounterVec
	EdgesLinked     prometheus.Counter
	RollsScanned    prometheus.Counter
	RollLinks       prometheus.Counter

	RankPasses   *prometheus.CounterVec
	RankDuration prometheus.Histogram
	GraphNodes   prometheus.Gauge
	GraphEdges   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LinksDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "blogrank_spider_links_discovered_total",
			Help: "Total number of new sites registered by the spider.",
		}),
		LinksSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blogrank_spider_links_skipped_total",
			Help: "Total number of candidate links skipped by the spider, labelled by reason.",
		}, []string{"reason"}),
		EdgesLinked: factory.NewCounter(prometheus.CounterOpts{
			Name: "blogrank_linkgraph_edges_linked_total",
			Help: "Total number of edges written by link graph builds.",
		}),
		RollsScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "blogrank_linkgraph_rolls_scanned_total",
			Help: "Total number of non-empty link rolls extracted by link graph builds.",
		}),
		RollLinks: factory.NewCounter(prometheus.CounterOpts{
			Name: "blogrank_linkgraph_roll_links_total",
			Help: "Total number of candidate links found in extracted link rolls.",
		}),
		RankPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blogrank_rank_passes_total",
			Help: "Total number of ranking passes, labelled by status.",
		}, []string{"status"}),
		RankDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "blogrank_rank_duration_seconds",
			Help:    "Duration of complete ranking passes in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		}),
		GraphNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blogrank_rank_graph_nodes",
			Help: "Number of nodes in the most recently ranked graph.",
		}),
		GraphEdges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blogrank_rank_graph_edges",
			Help: "Number of edges in the most recently ranked graph.",
		}),
	}
}

// NewUnregistered returns collectors that are not exported anywhere.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
