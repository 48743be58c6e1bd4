package server

import (
	"sync/atomic"
	"time"
)

// State — флаги готовности и живости для health-эндпоинтов.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	feedConnected atomic.Bool
	lastTickUnix  atomic.Int64 // unix seconds
	lastSweepUnix atomic.Int64
	restoredFrom  atomic.Value // string
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.restoredFrom.Store("")
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetFeedConnected(v bool) { s.feedConnected.Store(v) }
func (s *State) FeedConnected() bool     { return s.feedConnected.Load() }

func (s *State) TouchTick(t time.Time)  { s.lastTickUnix.Store(t.Unix()) }
func (s *State) TouchSweep(t time.Time) { s.lastSweepUnix.Store(t.Unix()) }

func (s *State) LastTick() time.Time  { return unix(s.lastTickUnix.Load()) }
func (s *State) LastSweep() time.Time { return unix(s.lastSweepUnix.Load()) }

func (s *State) SetRestoredFrom(sink string) { s.restoredFrom.Store(sink) }
func (s *State) RestoredFrom() string        { return s.restoredFrom.Load().(string) }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

func unix(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}
