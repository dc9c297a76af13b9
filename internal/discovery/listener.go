package discovery

import (
	"context"
	"log/slog"
	"sort"

	"github.com/starford/portlight/internal/models"
)

// ListenerScanner reports the process-owned LISTEN sockets on the host.
type ListenerScanner struct {
	sys    System
	logger *slog.Logger
}

// NewListenerScanner creates a ListenerScanner.
func NewListenerScanner(sys System, logger *slog.Logger) *ListenerScanner {
	return &ListenerScanner{sys: sys, logger: logger}
}

// Scan returns one entry per (pid, port), ordered by port then pid. A failed
// OS query yields an empty result.
func (s *ListenerScanner) Scan(ctx context.Context) []models.Listener {
	raw, err := s.sys.Listeners(ctx)
	if err != nil {
		s.logger.Warn("discovery: listener scan failed", slog.String("error", err.Error()))
		return nil
	}

	seen := make(map[models.Identity]struct{}, len(raw))
	out := make([]models.Listener, 0, len(raw))
	for _, l := range raw {
		if l.Port <= 0 || l.PID <= 0 {
			continue
		}
		id := models.Identity{PID: l.PID, Port: l.Port}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, l)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Port != out[j].Port {
			return out[i].Port < out[j].Port
		}
		return out[i].PID < out[j].PID
	})
	s.logger.Debug("discovery: listeners scanned", slog.Int("count", len(out)))
	return out
}
