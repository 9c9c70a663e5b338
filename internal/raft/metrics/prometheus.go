package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"raft-election/internal/raft"
)

// PrometheusMetrics holds the Prometheus vectors shared by every node of a process. Each node gets its own
// collector, curried with its node_id label, through ForNode.
type PrometheusMetrics struct {
	requestVotes     *prometheus.CounterVec
	heartbeats       *prometheus.CounterVec
	elections        *prometheus.CounterVec
	electionsWon     *prometheus.CounterVec
	stepDowns        *prometheus.CounterVec
	electionDuration *prometheus.HistogramVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
	const (
		namespace = "raft"
		subsystem = "election"
	)

	labels := []string{"node_id"}

	return &PrometheusMetrics{
		requestVotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_vote_total",
			Help:      "Number of RequestVote calls sent to peers",
		}, labels),

		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "heartbeat_total",
			Help:      "Number of empty AppendEntries calls sent to peers",
		}, labels),

		elections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "started_total",
			Help:      "Number of elections started",
		}, labels),

		electionsWon: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "won_total",
			Help:      "Number of elections won",
		}, labels),

		stepDowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "step_down_total",
			Help:      "Number of times a candidate or leader reverted to follower",
		}, labels),

		electionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Histogram of the time from the start of a won election to leadership",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 8),
		}, labels),
	}
}

// PrometheusCollectors returns the vectors to register with a prometheus.Registerer.
func (m *PrometheusMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestVotes,
		m.heartbeats,
		m.elections,
		m.electionsWon,
		m.stepDowns,
		m.electionDuration,
	}
}

// ForNode returns a collector that records into the vectors under id's label
func (m *PrometheusMetrics) ForNode(id raft.NodeID) *PrometheusCollector {
	labels := prometheus.Labels{"node_id": id.String()}
	return &PrometheusCollector{
		requestVotes:     m.requestVotes.With(labels),
		heartbeats:       m.heartbeats.With(labels),
		elections:        m.elections.With(labels),
		electionsWon:     m.electionsWon.With(labels),
		stepDowns:        m.stepDowns.With(labels),
		electionDuration: m.electionDuration.With(labels),
	}
}

// PrometheusCollector records the metrics of a single node
type PrometheusCollector struct {
	requestVotes     prometheus.Counter
	heartbeats       prometheus.Counter
	elections        prometheus.Counter
	electionsWon     prometheus.Counter
	stepDowns        prometheus.Counter
	electionDuration prometheus.Observer
}

func (c *PrometheusCollector) RecordRequestVote() { c.requestVotes.Inc() }
func (c *PrometheusCollector) RecordHeartbeat()   { c.heartbeats.Inc() }
func (c *PrometheusCollector) RecordElection()    { c.elections.Inc() }
func (c *PrometheusCollector) RecordElectionWon() { c.electionsWon.Inc() }
func (c *PrometheusCollector) RecordStepDown()    { c.stepDowns.Inc() }

func (c *PrometheusCollector) RecordElectionDuration(d time.Duration) {
	c.electionDuration.Observe(d.Seconds())
}
