package registry

import (
	"sort"

	"github.com/starford/portlight/internal/models"
)

// Publish derives the consumer-facing list from a canonical snapshot:
//
//  1. records with no project (empty or "/") are dropped unless a browser is
//     connected to them;
//  2. the rest are grouped by project, and pids sharing one port within a
//     group (pre-fork workers) collapse to a single record;
//  3. a group with titled members keeps exactly those;
//  4. otherwise it keeps one representative, browser-connected first, then
//     the lowest port;
//  5. the result is ordered by project, port, pid.
//
// The output depends only on the set of input records, not their order.
func Publish(records []models.PortRecord) []models.PortRecord {
	groups := make(map[string][]models.PortRecord)
	for _, rec := range records {
		if noProject(rec.Project) && !rec.BrowserConnected {
			continue
		}
		groups[rec.Project] = append(groups[rec.Project], rec)
	}

	out := make([]models.PortRecord, 0, len(groups))
	for _, members := range groups {
		sortRecords(members)
		members = collapsePorts(members)

		titled := false
		for _, m := range members {
			if m.Title != "" {
				out = append(out, m)
				titled = true
			}
		}
		if titled {
			continue
		}

		pick := members[0]
		for _, m := range members {
			if m.BrowserConnected {
				pick = m
				break
			}
		}
		out = append(out, pick)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.Port != b.Port {
			return a.Port < b.Port
		}
		return a.PID < b.PID
	})
	return out
}

// Services projects published records into view items.
func Services(records []models.PortRecord) []models.Service {
	out := make([]models.Service, len(records))
	for i, rec := range records {
		out[i] = rec.Service()
	}
	return out
}

// collapsePorts keeps one record per port from members sorted by port then
// pid: the first titled one, else the lowest pid.
func collapsePorts(members []models.PortRecord) []models.PortRecord {
	out := make([]models.PortRecord, 0, len(members))
	for _, m := range members {
		if n := len(out); n > 0 && out[n-1].Port == m.Port {
			if out[n-1].Title == "" && m.Title != "" {
				out[n-1] = m
			}
			continue
		}
		out = append(out, m)
	}
	return out
}

func noProject(p string) bool {
	return p == "" || p == "/"
}
