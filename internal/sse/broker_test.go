package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// drain collects everything currently buffered on ch.
func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
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
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "custom", Data: map[string]string{"k": "v"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "event: custom\ndata: ") || !strings.HasSuffix(s, "\n\n") {
			t.Errorf("bad frame %q", s)
		}
		if !strings.Contains(s, `"k":"v"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishConversionEvent_Payload(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishConversionEvent("created", "runs/a.ipynb")
	b.PublishConversionEvent("deleted", "runs/b.ipynb")
	b.PublishConversionEvent("renamed", "runs/c.ipynb")
	time.Sleep(50 * time.Millisecond)

	msgs := drain(ch)
	joined := strings.Join(msgs, "")
	if !strings.Contains(joined, "event: "+TypeConversionCreated+"\ndata: "+`{"notebook_path":"runs/a.ipynb","script_path":"runs/a.py"}`) {
		t.Errorf("created frame missing in %q", joined)
	}
	if !strings.Contains(joined, "event: "+TypeConversionDeleted+"\ndata: "+`{"notebook_path":"runs/b.ipynb"}`) {
		t.Errorf("deleted frame missing in %q", joined)
	}
	if strings.Contains(joined, "runs/c.ipynb") {
		t.Errorf("unknown kind was published: %q", joined)
	}
}

func TestPublishConversionEvent_LedgerThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event triggers ledger.updated, the second is folded.
	b.PublishConversionEvent("created", "a.ipynb")
	b.PublishConversionEvent("updated", "b.ipynb")
	time.Sleep(50 * time.Millisecond)

	ledgerCount, conversionCount := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, TypeLedgerUpdated) {
			ledgerCount++
			if !strings.Contains(s, `"changes":1`) {
				t.Errorf("first ledger event = %q, want changes 1", s)
			}
		} else {
			conversionCount++
		}
	}
	if conversionCount != 2 {
		t.Errorf("conversion events = %d, want 2", conversionCount)
	}
	if ledgerCount != 1 {
		t.Errorf("ledger events = %d, want 1 (throttled)", ledgerCount)
	}

	// After the window the pending change is reported with the new one.
	time.Sleep(500 * time.Millisecond)
	b.PublishConversionEvent("deleted", "a.ipynb")
	time.Sleep(50 * time.Millisecond)

	var ledger []string
	for _, s := range drain(ch) {
		if strings.Contains(s, TypeLedgerUpdated) {
			ledger = append(ledger, s)
		}
	}
	if len(ledger) != 1 || !strings.Contains(ledger[0], `"changes":2`) {
		t.Errorf("ledger events after window = %q, want one with changes 2", ledger)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100*time.Millisecond, WithKeepAlive(20*time.Millisecond))
	defer b.Close()

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

	b.PublishConversionEvent("updated", "x.ipynb")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: "+TypeConversionUpdated) {
		t.Errorf("handler output missing event: %q", body)
	}
	if !strings.Contains(body, ": ping\n\n") {
		t.Errorf("handler output missing keepalive: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Buffer holds 64; the rest must be dropped without blocking.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
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

	// Safe no-ops after close.
	b.Publish(Event{Type: "custom", Data: nil})
	b.PublishConversionEvent("updated", "x.ipynb")
	b.Close()
}
