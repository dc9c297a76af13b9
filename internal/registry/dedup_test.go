package registry

import (
	"reflect"
	"testing"

	"github.com/starford/portlight/internal/models"
)

func rec(pid int32, port int, project, title string, browser bool) models.PortRecord {
	return models.PortRecord{
		ID:               models.Identity{PID: pid, Port: port},
		Port:             port,
		PID:              pid,
		Process:          "node",
		Project:          project,
		Title:            title,
		BrowserConnected: browser,
	}
}

func portsOf(recs []models.PortRecord) []int {
	out := make([]int, len(recs))
	for i, r := range recs {
		out[i] = r.Port
	}
	return out
}

func TestPublish_TitledWins(t *testing.T) {
	got := Publish([]models.PortRecord{
		rec(10, 3000, "api", "", false),
		rec(10, 3001, "api", "API Docs", false),
	})
	if len(got) != 1 || got[0].Port != 3001 {
		t.Errorf("got %v, want only titled 3001", portsOf(got))
	}
}

func TestPublish_KeepsAllTitled(t *testing.T) {
	got := Publish([]models.PortRecord{
		rec(10, 3002, "api", "Admin", false),
		rec(10, 3000, "api", "", true),
		rec(10, 3001, "api", "Docs", false),
	})
	if want := []int{3001, 3002}; !reflect.DeepEqual(portsOf(got), want) {
		t.Errorf("got %v, want %v", portsOf(got), want)
	}
}

func TestPublish_PrefersBrowserConnected(t *testing.T) {
	got := Publish([]models.PortRecord{
		rec(10, 3000, "web", "", false),
		rec(10, 8080, "web", "", true),
	})
	if len(got) != 1 || got[0].Port != 8080 {
		t.Errorf("got %v, want 8080", portsOf(got))
	}
}

func TestPublish_LowestPortFallback(t *testing.T) {
	got := Publish([]models.PortRecord{
		rec(10, 9229, "web", "", false),
		rec(10, 5173, "web", "", false),
		rec(10, 24678, "web", "", false),
	})
	if len(got) != 1 || got[0].Port != 5173 {
		t.Errorf("got %v, want 5173", portsOf(got))
	}
}

func TestPublish_NoiseFiltered(t *testing.T) {
	got := Publish([]models.PortRecord{
		rec(1, 22, "", "", false),
		rec(2, 631, "/", "", false),
		rec(3, 4000, "/", "", true),
	})
	if len(got) != 1 || got[0].Port != 4000 {
		t.Errorf("got %v, want only browser-connected 4000", portsOf(got))
	}
}

func TestPublish_SortedAndOrderIndependent(t *testing.T) {
	in := []models.PortRecord{
		rec(30, 8000, "zeta", "", false),
		rec(10, 3000, "alpha", "A", false),
		rec(20, 5000, "mid", "", false),
		rec(11, 2000, "alpha", "B", false),
	}
	want := []int{2000, 3000, 5000, 8000}

	got := Publish(in)
	if !reflect.DeepEqual(portsOf(got), want) {
		t.Fatalf("got %v, want %v", portsOf(got), want)
	}

	reversed := make([]models.PortRecord, len(in))
	for i := range in {
		reversed[len(in)-1-i] = in[i]
	}
	if again := Publish(reversed); !reflect.DeepEqual(got, again) {
		t.Errorf("output depends on input order:\n%+v\n%+v", got, again)
	}
}

func TestPublish_Empty(t *testing.T) {
	if got := Publish(nil); len(got) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestPublish_SharedPortWorkersCollapse(t *testing.T) {
	got := Publish([]models.PortRecord{
		rec(102, 8000, "shop", "Shop", false),
		rec(100, 8000, "shop", "Shop", false),
		rec(101, 8000, "shop", "Shop", false),
		rec(100, 8001, "shop", "Shop Admin", false),
	})
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(got), got)
	}
	if got[0].Port != 8000 || got[0].PID != 100 {
		t.Errorf("shared port kept %d:%d, want 100:8000", got[0].PID, got[0].Port)
	}
	if got[1].Port != 8001 {
		t.Errorf("second = %d, want 8001", got[1].Port)
	}
}

func TestPublish_SharedPortPrefersTitledWorker(t *testing.T) {
	got := Publish([]models.PortRecord{
		rec(100, 8000, "shop", "", false),
		rec(101, 8000, "shop", "Shop", false),
	})
	if len(got) != 1 || got[0].PID != 101 || got[0].Title != "Shop" {
		t.Errorf("got %+v, want titled 101:8000", got)
	}
}

func TestPublish_UnattributedBrowserPortsShareGroup(t *testing.T) {
	// Browser-held ports without a project label form one group.
	got := Publish([]models.PortRecord{
		rec(10, 4000, "", "", true),
		rec(20, 5000, "", "", true),
	})
	if len(got) != 1 || got[0].Port != 4000 {
		t.Errorf("got %v, want only 4000", portsOf(got))
	}
}
