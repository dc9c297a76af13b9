package discovery

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
)

// DefaultBrowsers is the substring allow-list used to recognise browser
// processes. Matching is case-insensitive.
var DefaultBrowsers = []string{
	"browser", "google", "chrome", "arc", "safari", "firefox", "webkit",
	"chromium", "brave", "edge", "opera",
}

// ConnectionScanner finds local ports that a browser is currently connected to.
type ConnectionScanner struct {
	sys      System
	logger   *slog.Logger
	browsers atomic.Pointer[[]string]
}

// NewConnectionScanner creates a ConnectionScanner. An empty browsers list
// falls back to DefaultBrowsers.
func NewConnectionScanner(sys System, browsers []string, logger *slog.Logger) *ConnectionScanner {
	s := &ConnectionScanner{sys: sys, logger: logger}
	s.SetBrowsers(browsers)
	return s
}

// SetBrowsers replaces the allow-list. Safe to call while Scan runs.
func (s *ConnectionScanner) SetBrowsers(browsers []string) {
	if len(browsers) == 0 {
		browsers = DefaultBrowsers
	}
	list := make([]string, 0, len(browsers))
	for _, b := range browsers {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			list = append(list, b)
		}
	}
	s.browsers.Store(&list)
}

// Browsers returns the current allow-list.
func (s *ConnectionScanner) Browsers() []string {
	return append([]string(nil), *s.browsers.Load()...)
}

// Scan returns the set of loopback destination ports held open by a browser.
func (s *ConnectionScanner) Scan(ctx context.Context) map[int]struct{} {
	ports := make(map[int]struct{})

	conns, err := s.sys.Connections(ctx)
	if err != nil {
		s.logger.Warn("discovery: connection scan failed", slog.String("error", err.Error()))
		return ports
	}

	browsers := *s.browsers.Load()
	for _, c := range conns {
		if c.RemotePort <= 0 || !isLoopback(c.RemoteAddr) {
			continue
		}
		if !matchesAny(c.Process, browsers) {
			continue
		}
		ports[c.RemotePort] = struct{}{}
	}
	s.logger.Debug("discovery: browser ports scanned", slog.Int("count", len(ports)))
	return ports
}

func matchesAny(process string, needles []string) bool {
	name := strings.ToLower(process)
	if name == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

func isLoopback(addr string) bool {
	if addr == "localhost" {
		return true
	}
	ip := net.ParseIP(strings.Trim(addr, "[]"))
	return ip != nil && ip.IsLoopback()
}
