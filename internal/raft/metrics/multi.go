package metrics

import "time"

// Collector is the set of recording methods shared by Metrics and PrometheusCollector
type Collector interface {
	RecordRequestVote()
	RecordHeartbeat()
	RecordElection()
	RecordElectionWon()
	RecordStepDown()
	RecordElectionDuration(d time.Duration)
}

// Fanout records every observation into each of its collectors
type Fanout []Collector

func (f Fanout) RecordRequestVote() {
	for _, c := range f {
		c.RecordRequestVote()
	}
}

func (f Fanout) RecordHeartbeat() {
	for _, c := range f {
		c.RecordHeartbeat()
	}
}

func (f Fanout) RecordElection() {
	for _, c := range f {
		c.RecordElection()
	}
}

func (f Fanout) RecordElectionWon() {
	for _, c := range f {
		c.RecordElectionWon()
	}
}

func (f Fanout) RecordStepDown() {
	for _, c := range f {
		c.RecordStepDown()
	}
}

func (f Fanout) RecordElectionDuration(d time.Duration) {
	for _, c := range f {
		c.RecordElectionDuration(d)
	}
}
