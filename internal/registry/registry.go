// Package registry holds the canonical per-port state and derives the
// published service list from it.
//
// A Registry is not safe for concurrent use. Exactly one goroutine owns it
// and applies scan results, probe outcomes and kills in order.
package registry

import (
	"sort"
	"strings"

	"github.com/starford/portlight/internal/models"
)

// Registry is the canonical snapshot plus the per-identity probe memo.
type Registry struct {
	records map[models.Identity]models.PortRecord
	probes  map[models.Identity]models.ProbeState
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		records: make(map[models.Identity]models.PortRecord),
		probes:  make(map[models.Identity]models.ProbeState),
	}
}

// Merge replaces the snapshot with this cycle's scan. projects maps pid to
// project label; browserPorts is the set of ports a browser is connected to.
//
// Titles are carried forward from the previous record of the same identity.
// Identities that disappear lose their probe memo. The returned records are
// the untitled, untried identities, now marked in-flight, that the caller
// must probe.
func (r *Registry) Merge(listeners []models.Listener, projects map[int32]string, browserPorts map[int]struct{}) (changed bool, toProbe []models.PortRecord) {
	next := make(map[models.Identity]models.PortRecord, len(listeners)+len(browserPorts))
	listened := make(map[int]struct{}, len(listeners))

	for _, l := range listeners {
		id := models.Identity{PID: l.PID, Port: l.Port}
		_, browser := browserPorts[l.Port]
		next[id] = models.PortRecord{
			ID:               id,
			Port:             l.Port,
			Process:          l.Process,
			PID:              l.PID,
			User:             l.User,
			Project:          projects[l.PID],
			BrowserConnected: browser,
		}
		listened[l.Port] = struct{}{}
	}

	for port := range browserPorts {
		if _, ok := listened[port]; ok {
			continue
		}
		id := models.Identity{Port: port}
		next[id] = models.PortRecord{
			ID:               id,
			Port:             port,
			Process:          models.UnknownProcess,
			User:             models.UnknownUser,
			Project:          models.ExternalProject,
			BrowserConnected: true,
		}
	}

	// A port that flips between listener and external shape keeps its title.
	handoff := make(map[int]models.PortRecord)
	for id, prev := range r.records {
		if prev.Title == "" {
			continue
		}
		if _, alive := next[id]; alive {
			continue
		}
		if cur, ok := handoff[id.Port]; !ok || prev.PID < cur.PID {
			handoff[id.Port] = prev
		}
	}

	for id, rec := range next {
		if prev, ok := r.records[id]; ok && prev.Title != "" {
			rec.Title = prev.Title
			next[id] = rec
			continue
		}
		if prev, ok := handoff[id.Port]; ok && prev.ID.External() != id.External() {
			rec.Title = prev.Title
			next[id] = rec
		}
	}

	changed = !sameRecords(r.records, next)
	r.records = next

	for id := range r.probes {
		if _, ok := next[id]; !ok {
			delete(r.probes, id)
		}
	}

	for id, rec := range next {
		if rec.Title != "" {
			continue
		}
		if r.probes[id] != models.ProbeUntried {
			continue
		}
		r.probes[id] = models.ProbeInFlight
		toProbe = append(toProbe, rec)
	}
	sortRecords(toProbe)
	return changed, toProbe
}

// RecordProbe applies a probe outcome for id. Outcomes for identities that
// are no longer present are dropped. It reports whether the snapshot changed.
func (r *Registry) RecordProbe(id models.Identity, o models.ProbeOutcome) bool {
	rec, ok := r.records[id]
	if !ok {
		return false
	}

	switch o.State {
	case models.ProbeSucceeded:
		title := strings.TrimSpace(o.Title)
		if title == "" {
			r.probes[id] = models.ProbeNoTitle
			return false
		}
		r.probes[id] = models.ProbeSucceeded
		if rec.Title != "" {
			return false
		}
		rec.Title = title
		r.records[id] = rec
		return true
	case models.ProbeFailed, models.ProbeNoTitle:
		r.probes[id] = o.State
	}
	return false
}

// RemovePID drops every record owned by pid. It reports whether anything was
// removed.
func (r *Registry) RemovePID(pid int32) bool {
	removed := false
	for id, rec := range r.records {
		if rec.PID == pid && !id.External() {
			delete(r.records, id)
			delete(r.probes, id)
			removed = true
		}
	}
	return removed
}

// ProbeState returns the memo for id.
func (r *Registry) ProbeState(id models.Identity) models.ProbeState {
	return r.probes[id]
}

// Record returns the canonical record for id.
func (r *Registry) Record(id models.Identity) (models.PortRecord, bool) {
	rec, ok := r.records[id]
	return rec, ok
}

// Records returns a copy of the canonical snapshot ordered by port then pid.
func (r *Registry) Records() []models.PortRecord {
	out := make([]models.PortRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out
}

// Len returns the number of canonical records.
func (r *Registry) Len() int {
	return len(r.records)
}

func sameRecords(a, b map[models.Identity]models.PortRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for id, ra := range a {
		if rb, ok := b[id]; !ok || ra != rb {
			return false
		}
	}
	return true
}

func sortRecords(recs []models.PortRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Port != recs[j].Port {
			return recs[i].Port < recs[j].Port
		}
		return recs[i].PID < recs[j].PID
	})
}
