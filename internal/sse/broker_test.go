package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/portlight/internal/models"
)

func view(version uint64, names ...string) models.View {
	v := models.View{Version: version}
	for _, n := range names {
		v.Services = append(v.Services, models.Service{DisplayName: n})
	}
	return v
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "process.killed", Data: map[string]int{"pid": 42}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: process.killed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"pid":42`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishView_ReplayedToLateSubscriber(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	b.PublishView(view(1, "api"))
	b.PublishView(view(2, "api", "Dashboard"))
	// Give the loop time to drain both views.
	time.Sleep(50 * time.Millisecond)

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: "+EventServicesUpdated) {
			t.Errorf("unexpected event %q", s)
		}
		if !strings.Contains(s, `"version":2`) || !strings.Contains(s, "Dashboard") {
			t.Errorf("replay is not the latest view: %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no replay for late subscriber")
	}

	select {
	case msg := <-ch:
		t.Errorf("only the latest view should be replayed, got %q", msg)
	default:
	}
}

func TestKeepAlive(t *testing.T) {
	b := NewBroker(20 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	select {
	case msg := <-ch:
		if string(msg) != ": ping\n\n" {
			t.Errorf("keep-alive = %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no keep-alive received")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishView(view(7, "web"))
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: services.updated") || !strings.Contains(body, `"display_name":"web"`) {
		t.Errorf("handler output missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.PublishView(view(uint64(i)))
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(0)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "x", Data: map[string]string{}})
	b.PublishView(view(1))
}
