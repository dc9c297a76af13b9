package discovery

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/starford/portlight/internal/models"
)

// ProcessAttributor guesses the project a process belongs to from its working
// directory.
type ProcessAttributor struct {
	sys    System
	logger *slog.Logger
}

// NewProcessAttributor creates a ProcessAttributor.
func NewProcessAttributor(sys System, logger *slog.Logger) *ProcessAttributor {
	return &ProcessAttributor{sys: sys, logger: logger}
}

// Project returns the last path segment of pid's cwd. It reports false when
// the pid is gone, access is denied or the cwd is the filesystem root.
func (a *ProcessAttributor) Project(ctx context.Context, pid int32) (string, bool) {
	cwd, err := a.sys.Cwd(ctx, pid)
	if err != nil {
		a.logger.Debug("discovery: cwd lookup failed", slog.Int("pid", int(pid)), slog.String("error", err.Error()))
		return "", false
	}
	if cwd == "" {
		return "", false
	}
	base := filepath.Base(filepath.Clean(cwd))
	if base == "." || base == string(filepath.Separator) || base == "/" {
		return "", false
	}
	return base, true
}

// Attribute resolves a project for every distinct pid in listeners. Pids
// without a project are absent from the result.
func (a *ProcessAttributor) Attribute(ctx context.Context, listeners []models.Listener) map[int32]string {
	out := make(map[int32]string)
	tried := make(map[int32]struct{})
	for _, l := range listeners {
		if _, ok := tried[l.PID]; ok {
			continue
		}
		tried[l.PID] = struct{}{}
		if name, ok := a.Project(ctx, l.PID); ok {
			out[l.PID] = name
		}
	}
	return out
}
