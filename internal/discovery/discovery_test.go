package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/portlight/internal/models"
	"github.com/starford/portlight/internal/testutil"
)

func TestListenerScanner_DedupesAndSorts(t *testing.T) {
	sys := testutil.NewFakeSystem()
	sys.SetListeners(
		models.Listener{Port: 5173, PID: 20, Process: "node"},
		models.Listener{Port: 3000, PID: 10, Process: "node"},
		models.Listener{Port: 3000, PID: 10, Process: "node"}, // IPv6 twin
		models.Listener{Port: 3000, PID: 9, Process: "node"},  // pre-fork sibling, kept per pid
		models.Listener{Port: 0, PID: 11, Process: "bogus"},
	)
	s := NewListenerScanner(sys, testutil.Logger(t))

	got := s.Scan(context.Background())
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(got), got)
	}
	want := []models.Identity{{PID: 9, Port: 3000}, {PID: 10, Port: 3000}, {PID: 20, Port: 5173}}
	for i, w := range want {
		if got[i].PID != w.PID || got[i].Port != w.Port {
			t.Errorf("got[%d] = %d:%d, want %s", i, got[i].PID, got[i].Port, w)
		}
	}
}

func TestListenerScanner_FailureIsEmpty(t *testing.T) {
	sys := testutil.NewFakeSystem()
	sys.SetListeners(models.Listener{Port: 3000, PID: 10})
	sys.FailListeners(errors.New("permission denied"))
	s := NewListenerScanner(sys, testutil.Logger(t))

	if got := s.Scan(context.Background()); len(got) != 0 {
		t.Errorf("expected empty result on failure, got %+v", got)
	}
}

func TestConnectionScanner_BrowserLoopbackOnly(t *testing.T) {
	sys := testutil.NewFakeSystem()
	sys.SetConnections(
		models.Connection{Process: "Google Chrome Helper", RemoteAddr: "127.0.0.1", RemotePort: 3000},
		models.Connection{Process: "firefox", RemoteAddr: "::1", RemotePort: 8080},
		models.Connection{Process: "Safari", RemoteAddr: "93.184.216.34", RemotePort: 443},
		models.Connection{Process: "node", RemoteAddr: "127.0.0.1", RemotePort: 5432},
		models.Connection{Process: "", RemoteAddr: "127.0.0.1", RemotePort: 9000},
	)
	s := NewConnectionScanner(sys, nil, testutil.Logger(t))

	got := s.Scan(context.Background())
	if len(got) != 2 {
		t.Fatalf("ports = %v, want {3000, 8080}", got)
	}
	for _, p := range []int{3000, 8080} {
		if _, ok := got[p]; !ok {
			t.Errorf("missing port %d", p)
		}
	}
}

func TestConnectionScanner_SetBrowsers(t *testing.T) {
	sys := testutil.NewFakeSystem()
	sys.SetConnections(
		models.Connection{Process: "Chrome", RemoteAddr: "127.0.0.1", RemotePort: 3000},
		models.Connection{Process: "Zen", RemoteAddr: "127.0.0.1", RemotePort: 4000},
	)
	s := NewConnectionScanner(sys, []string{"chrome"}, testutil.Logger(t))
	if _, ok := s.Scan(context.Background())[4000]; ok {
		t.Fatal("zen should not match before reload")
	}

	s.SetBrowsers([]string{"  ZEN "})
	got := s.Scan(context.Background())
	if _, ok := got[4000]; !ok {
		t.Errorf("zen should match after reload, got %v", got)
	}
	if _, ok := got[3000]; ok {
		t.Errorf("chrome should no longer match, got %v", got)
	}
	if b := s.Browsers(); len(b) != 1 || b[0] != "zen" {
		t.Errorf("browsers = %v", b)
	}
}

func TestConnectionScanner_FailureIsEmpty(t *testing.T) {
	sys := testutil.NewFakeSystem()
	sys.FailConnections(errors.New("boom"))
	s := NewConnectionScanner(sys, nil, testutil.Logger(t))
	if got := s.Scan(context.Background()); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil set, got %v", got)
	}
}

func TestProcessAttributor_Project(t *testing.T) {
	sys := testutil.NewFakeSystem()
	sys.SetCwd(10, "/home/dev/src/api")
	sys.SetCwd(11, "/home/dev/src/web/")
	sys.SetCwd(12, "/")
	a := NewProcessAttributor(sys, testutil.Logger(t))
	ctx := context.Background()

	cases := []struct {
		pid    int32
		want   string
		wantOK bool
	}{
		{10, "api", true},
		{11, "web", true},
		{12, "", false},
		{99, "", false},
	}
	for _, c := range cases {
		got, ok := a.Project(ctx, c.pid)
		if got != c.want || ok != c.wantOK {
			t.Errorf("Project(%d) = (%q, %v), want (%q, %v)", c.pid, got, ok, c.want, c.wantOK)
		}
	}
}

func TestProcessAttributor_Attribute(t *testing.T) {
	sys := testutil.NewFakeSystem()
	sys.SetCwd(10, "/work/api")
	a := NewProcessAttributor(sys, testutil.Logger(t))

	got := a.Attribute(context.Background(), []models.Listener{
		{Port: 3000, PID: 10},
		{Port: 3001, PID: 10},
		{Port: 6379, PID: 77},
	})
	if got[10] != "api" {
		t.Errorf("pid 10 = %q, want api", got[10])
	}
	if _, ok := got[77]; ok {
		t.Errorf("pid 77 should be absent")
	}
}
