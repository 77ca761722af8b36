package space

import "sync/atomic"

// Stats is a snapshot of the space's operation counters.
type Stats struct {
	Reads         int64 `json:"reads"`
	Takes         int64 `json:"takes"`
	Writes        int64 `json:"writes"`
	MissedReads   int64 `json:"missed_reads"`
	MissedTakes   int64 `json:"missed_takes"`
	BlockingReads int64 `json:"blocking_reads"`
	BlockingTakes int64 `json:"blocking_takes"`
	Listeners     int64 `json:"listeners"`
	Expired       int64 `json:"expired"`
	DroppedEvents int64 `json:"dropped_events"`
}

type statistics struct {
	reads         atomic.Int64
	takes         atomic.Int64
	writes        atomic.Int64
	missedReads   atomic.Int64
	missedTakes   atomic.Int64
	blockingReads atomic.Int64
	blockingTakes atomic.Int64
	listeners     atomic.Int64
	expired       atomic.Int64
	dropped       atomic.Int64
}

func (s *statistics) snapshot() Stats {
	return Stats{
		Reads:         s.reads.Load(),
		Takes:         s.takes.Load(),
		Writes:        s.writes.Load(),
		MissedReads:   s.missedReads.Load(),
		MissedTakes:   s.missedTakes.Load(),
		BlockingReads: s.blockingReads.Load(),
		BlockingTakes: s.blockingTakes.Load(),
		Listeners:     s.listeners.Load(),
		Expired:       s.expired.Load(),
		DroppedEvents: s.dropped.Load(),
	}
}

func (s *statistics) hit(isTake bool) {
	if isTake {
		s.takes.Add(1)
	} else {
		s.reads.Add(1)
	}
}

func (s *statistics) miss(isTake bool) {
	if isTake {
		s.missedTakes.Add(1)
	} else {
		s.missedReads.Add(1)
	}
}

func (s *statistics) blocking(isTake bool, delta int64) {
	if isTake {
		s.blockingTakes.Add(delta)
	} else {
		s.blockingReads.Add(delta)
	}
}
