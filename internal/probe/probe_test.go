package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/portlight/internal/models"
)

func TestExtractTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "<html><head><title>Dashboard</title></head></html>", "Dashboard"},
		{"attributes", `<TITLE data-rh="true" lang="en">  Vite App </TITLE>`, "Vite App"},
		{"multiline", "<title>\n  My\n  Service\n</title>", "My Service"},
		{"first wins", "<title>One</title><title>Two</title>", "One"},
		{"empty", "<title>   </title>", ""},
		{"missing", "<html><body>no head</body></html>", ""},
		{"unclosed", "<title>half", ""},
		{"raw kv", "-ERR unknown command 'GET'\r\n", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ExtractTitle(c.in); got != c.want {
				t.Errorf("ExtractTitle(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestProbe_Title(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<!doctype html><title>Dashboard</title>")
	}))
	defer srv.Close()

	got := New(time.Second).Probe(context.Background(), srv.URL)
	if got.State != models.ProbeSucceeded || got.Title != "Dashboard" {
		t.Errorf("outcome = %+v, want succeeded Dashboard", got)
	}
}

func TestProbe_ErrorPageStillCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<title>Not Found - Rails</title>")
	}))
	defer srv.Close()

	got := New(time.Second).Probe(context.Background(), srv.URL)
	if got.State != models.ProbeSucceeded || got.Title != "Not Found - Rails" {
		t.Errorf("outcome = %+v", got)
	}
}

func TestProbe_NoTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	got := New(time.Second).Probe(context.Background(), srv.URL)
	if got.State != models.ProbeNoTitle {
		t.Errorf("state = %s, want no-title", got.State)
	}
}

func TestProbe_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	got := New(time.Second).Probe(context.Background(), "http://"+addr)
	if got.State != models.ProbeFailed || got.Err == nil {
		t.Errorf("outcome = %+v, want failed with error", got)
	}
}

func TestProbe_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	got := New(150 * time.Millisecond).Probe(context.Background(), srv.URL)
	if got.State != models.ProbeFailed {
		t.Errorf("state = %s, want failed", got.State)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("probe took %v, timeout not enforced", elapsed)
	}
}
