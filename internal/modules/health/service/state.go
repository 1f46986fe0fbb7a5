package service

import (
	"sync/atomic"
	"time"
)

// State — живое состояние бота для health-эндпоинтов.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	activeRunners atomic.Int64
	lastCycleUnix atomic.Int64 // unix seconds
	suspended     atomic.Bool
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetActiveRunners(n int) { s.activeRunners.Store(int64(n)) }
func (s *State) ActiveRunners() int     { return int(s.activeRunners.Load()) }

func (s *State) SetSuspended(v bool) { s.suspended.Store(v) }
func (s *State) Suspended() bool     { return s.suspended.Load() }

func (s *State) TouchCycle(t time.Time) { s.lastCycleUnix.Store(t.Unix()) }
func (s *State) LastCycle() time.Time {
	u := s.lastCycleUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
