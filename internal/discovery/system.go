// Package discovery finds local listeners, browser-held connections and the
// projects that own them.
package discovery

import (
	"context"
	"fmt"

	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/starford/portlight/internal/models"
)

// System is the OS surface the scanners depend on.
type System interface {
	// Listeners returns every TCP socket in LISTEN state that has an owning pid.
	// Entries may repeat per address family.
	Listeners(ctx context.Context) ([]models.Listener, error)
	// Connections returns established TCP connections.
	Connections(ctx context.Context) ([]models.Connection, error)
	// Cwd returns the current working directory of pid.
	Cwd(ctx context.Context, pid int32) (string, error)
	// Terminate asks pid to exit.
	Terminate(ctx context.Context, pid int32) error
}

// Host implements System on top of gopsutil.
type Host struct{}

// NewHost creates a Host.
func NewHost() *Host {
	return &Host{}
}

var _ System = (*Host)(nil)

type procInfo struct {
	name string
	user string
}

// Listeners implements System.
func (h *Host) Listeners(ctx context.Context) ([]models.Listener, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("discovery: list tcp sockets: %w", err)
	}

	cache := make(map[int32]procInfo)
	var out []models.Listener
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Pid <= 0 || c.Laddr.Port == 0 {
			continue
		}
		info := lookup(ctx, cache, c.Pid, true)
		out = append(out, models.Listener{
			Port:    int(c.Laddr.Port),
			PID:     c.Pid,
			Process: info.name,
			User:    info.user,
		})
	}
	return out, nil
}

// Connections implements System.
func (h *Host) Connections(ctx context.Context) ([]models.Connection, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("discovery: list tcp connections: %w", err)
	}

	cache := make(map[int32]procInfo)
	var out []models.Connection
	for _, c := range conns {
		if c.Status != "ESTABLISHED" || c.Pid <= 0 {
			continue
		}
		info := lookup(ctx, cache, c.Pid, false)
		out = append(out, models.Connection{
			Process:    info.name,
			PID:        c.Pid,
			LocalPort:  int(c.Laddr.Port),
			RemoteAddr: c.Raddr.IP,
			RemotePort: int(c.Raddr.Port),
			Status:     c.Status,
		})
	}
	return out, nil
}

// Cwd implements System.
func (h *Host) Cwd(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", fmt.Errorf("discovery: open pid %d: %w", pid, err)
	}
	cwd, err := p.CwdWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("discovery: cwd of pid %d: %w", pid, err)
	}
	return cwd, nil
}

// Terminate implements System. It sends SIGTERM on unix.
func (h *Host) Terminate(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("discovery: open pid %d: %w", pid, err)
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return fmt.Errorf("discovery: terminate pid %d: %w", pid, err)
	}
	return nil
}

// lookup resolves name (and optionally user) once per pid per call site.
func lookup(ctx context.Context, cache map[int32]procInfo, pid int32, withUser bool) procInfo {
	if info, ok := cache[pid]; ok {
		return info
	}
	var info procInfo
	if p, err := process.NewProcessWithContext(ctx, pid); err == nil {
		info.name, _ = p.NameWithContext(ctx)
		if withUser {
			info.user, _ = p.UsernameWithContext(ctx)
		}
	}
	cache[pid] = info
	return info
}
