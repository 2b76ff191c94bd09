// Package state holds the process-wide current view of desired routing:
// the latest route spec and the latest failed-IP set. There is exactly
// one writer (the coordinator); everything else reads immutable
// snapshots, so the read path takes no lock.
package state

import (
	"sync/atomic"

	"github.com/vpcrouter/vpcrouter/internal/models"
)

type snapshot struct {
	spec   models.RouteSpec
	failed models.FailedIPSet
}

type State struct {
	cur atomic.Pointer[snapshot]
}

func New() *State {
	s := &State{}
	s.cur.Store(&snapshot{
		spec:   models.RouteSpec{},
		failed: models.FailedIPSet{},
	})
	return s
}

// Get returns the current (route spec, failed IPs) pair. The two values
// come from the same snapshot, so a reconciliation pass never observes a
// spec paired with a failed set it was not published with.
func (s *State) Get() (models.RouteSpec, models.FailedIPSet) {
	snap := s.cur.Load()
	return snap.spec, snap.failed
}

// SetRouteSpec replaces the route spec. Coordinator only; the stored
// spec must not be mutated afterwards.
func (s *State) SetRouteSpec(spec models.RouteSpec) {
	old := s.cur.Load()
	s.cur.Store(&snapshot{spec: spec, failed: old.failed})
}

// SetFailedIPs replaces the failed-IP set. Coordinator only.
func (s *State) SetFailedIPs(failed models.FailedIPSet) {
	old := s.cur.Load()
	s.cur.Store(&snapshot{spec: old.spec, failed: failed})
}
