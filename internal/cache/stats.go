package cache

import (
	"fmt"
	"sync"
)

// Stats accumulates cache/build counters across a run. Shared read-mostly
// state, mutated under its own lock, never exposed as a package global: the
// run controller owns one Stats value and hands it to whatever needs it.
type Stats struct {
	mu            sync.Mutex
	CacheHits     int64
	CacheMisses   int64
	LocalCompile  int64
	RemoteOffload int64
}

func (s *Stats) RecordHit() {
	s.mu.Lock()
	s.CacheHits++
	s.mu.Unlock()
}

func (s *Stats) RecordMiss() {
	s.mu.Lock()
	s.CacheMisses++
	s.mu.Unlock()
}

func (s *Stats) RecordLocalCompile() {
	s.mu.Lock()
	s.LocalCompile++
	s.mu.Unlock()
}

func (s *Stats) RecordRemoteOffload() {
	s.mu.Lock()
	s.RemoteOffload++
	s.mu.Unlock()
}

// String renders a one-line summary, printed at the end of a run the way
// xgConsole.rs prints state.statistic.read().unwrap().to_string().
func (s *Stats) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("cache: %d hits, %d misses; %d local compiles, %d remote offloads",
		s.CacheHits, s.CacheMisses, s.LocalCompile, s.RemoteOffload)
}
