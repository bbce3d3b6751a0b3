package events

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/R3E-Network/hostbridge/internal/engine/state"
)

func TestRingBuffer_Log(t *testing.T) {
	rb := NewRingBuffer(10)

	rb.Log(Event{
		Type:    EventObjectResolved,
		Object:  "OriginOnlineStatus",
		Message: "resolved after 3 probes",
	})

	if rb.Count() != 1 {
		t.Errorf("Count() = %d, want 1", rb.Count())
	}

	recent := rb.Recent(1)
	if len(recent) != 1 {
		t.Fatalf("Recent(1) len = %d, want 1", len(recent))
	}
	if recent[0].Object != "OriginOnlineStatus" {
		t.Errorf("Object = %q, want 'OriginOnlineStatus'", recent[0].Object)
	}
	if recent[0].ID == "" {
		t.Error("ID should be auto-generated")
	}
	if recent[0].Timestamp.IsZero() {
		t.Error("Timestamp should be auto-set")
	}
	if recent[0].Severity != SeverityInfo {
		t.Errorf("Severity = %q, want default info", recent[0].Severity)
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(5)

	for i := 0; i < 10; i++ {
		rb.Log(Event{Type: EventCallQueued, Message: string(rune('A' + i))})
	}

	if rb.Count() != 5 {
		t.Errorf("Count() = %d, want 5 (capped)", rb.Count())
	}

	recent := rb.Recent(5)
	if len(recent) != 5 {
		t.Fatalf("Recent(5) len = %d, want 5", len(recent))
	}
	if recent[0].Message != "J" {
		t.Errorf("Most recent message = %q, want 'J'", recent[0].Message)
	}
	if recent[4].Message != "F" {
		t.Errorf("Oldest message = %q, want 'F'", recent[4].Message)
	}
}

func TestRingBuffer_Recent(t *testing.T) {
	rb := NewRingBuffer(10)
	for i := 0; i < 5; i++ {
		rb.Log(Event{Type: EventSignalRelayed})
	}

	tests := []struct {
		name string
		n    int
		want int
	}{
		{"more than available", 100, 5},
		{"zero", 0, 0},
		{"negative", -1, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(rb.Recent(tc.n)); got != tc.want {
				t.Errorf("len(Recent(%d)) = %d, want %d", tc.n, got, tc.want)
			}
		})
	}
}

func TestRingBuffer_RecentByObjectAndType(t *testing.T) {
	rb := NewRingBuffer(100)

	rb.Log(Event{Type: EventObjectResolving, Object: "OriginUser"})
	rb.Log(Event{Type: EventObjectResolving, Object: "OriginIGO"})
	rb.Log(Event{Type: EventCallQueued, Object: "OriginUser", Method: "requestLogout"})
	rb.Log(Event{Type: EventObjectUnavailable, Object: "OriginIGO"})
	rb.Log(Event{Type: EventObjectResolved, Object: "OriginUser"})

	byObject := rb.RecentByObject("OriginUser", 10)
	if len(byObject) != 3 {
		t.Errorf("RecentByObject len = %d, want 3", len(byObject))
	}
	if byObject[0].Type != EventObjectResolved {
		t.Errorf("newest = %v, want object.resolved", byObject[0].Type)
	}

	byType := rb.RecentByType(EventObjectResolving, 10)
	if len(byType) != 2 {
		t.Errorf("RecentByType len = %d, want 2", len(byType))
	}
	for _, e := range byType {
		if e.Type != EventObjectResolving {
			t.Errorf("Type = %v, want object.resolving", e.Type)
		}
	}
}

func TestRingBuffer_Subscribe(t *testing.T) {
	rb := NewRingBuffer(10)

	var received []Event
	unsubscribe := rb.Subscribe(func(e Event) {
		received = append(received, e)
	})

	rb.Log(Event{Type: EventSignalBound})
	rb.Log(Event{Type: EventSignalRelayed})

	if len(received) != 2 {
		t.Errorf("received %d events, want 2", len(received))
	}

	unsubscribe()
	unsubscribe()

	rb.Log(Event{Type: EventSignalRelayed})
	if len(received) != 2 {
		t.Errorf("received %d events after unsubscribe, want 2", len(received))
	}
}

func TestRingBuffer_SubscribeFiltered(t *testing.T) {
	rb := NewRingBuffer(10)

	var received []Event
	rb.SubscribeFiltered(OfType(EventSignalRelayed, EventHandlerFailed), func(e Event) {
		received = append(received, e)
	})

	rb.Log(Event{Type: EventSignalRelayed, Signal: "CLIENT_ONLINESTATECHANGED"})
	rb.Log(Event{Type: EventCallQueued})
	rb.Log(Event{Type: EventHandlerFailed})

	if len(received) != 2 {
		t.Errorf("received %d events, want 2", len(received))
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Log(Event{Type: EventCallQueued})
	rb.Log(Event{Type: EventCallFlushed})

	rb.Clear()

	if rb.Count() != 0 {
		t.Errorf("Count() after clear = %d, want 0", rb.Count())
	}
	if rb.Recent(10) != nil {
		t.Error("Recent after clear should be nil")
	}
}

func TestRingBuffer_Concurrent(t *testing.T) {
	rb := NewRingBuffer(1000)

	var wg sync.WaitGroup
	var receivedCount atomic.Int64
	rb.Subscribe(func(e Event) {
		receivedCount.Add(1)
	})

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rb.Log(Event{Type: EventCallFlushed, Object: string(rune('A' + id))})
			}
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = rb.Recent(10)
				_ = rb.RecentByType(EventCallFlushed, 5)
				time.Sleep(time.Microsecond)
			}
		}()
	}
	wg.Wait()

	if rb.Count() != 1000 {
		t.Errorf("Count() = %d, want 1000", rb.Count())
	}
	if receivedCount.Load() != 1000 {
		t.Errorf("receivedCount = %d, want 1000", receivedCount.Load())
	}
}

func TestEventBuilder(t *testing.T) {
	event := NewEvent(EventCallFailed).
		Object("OriginDesktopServices").
		Method("asyncOpenUrl").
		Signal("").
		Status(state.StatusResolved).
		Message("call rejected by host").
		Duration(20*time.Millisecond).
		Metadata("queued", "true").
		ErrorFrom(errors.New("denied")).
		Build()

	if event.Object != "OriginDesktopServices" {
		t.Errorf("Object = %q", event.Object)
	}
	if event.Method != "asyncOpenUrl" {
		t.Errorf("Method = %q", event.Method)
	}
	if event.Status != state.StatusResolved {
		t.Errorf("Status = %v, want resolved", event.Status)
	}
	if event.Severity != SeverityError {
		t.Errorf("Severity = %v, want error", event.Severity)
	}
	if event.Error != "denied" {
		t.Errorf("Error = %q, want 'denied'", event.Error)
	}
	if event.Duration != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", event.Duration)
	}
	if event.Metadata["queued"] != "true" {
		t.Errorf("Metadata[queued] = %q", event.Metadata["queued"])
	}
	if event.ID == "" {
		t.Error("ID should be auto-generated")
	}
}

func TestEventBuilder_ErrorFromNil(t *testing.T) {
	event := NewEvent(EventObjectResolved).ErrorFrom(nil).Build()
	if event.Error != "" || event.Severity != SeverityInfo {
		t.Errorf("ErrorFrom(nil) changed event: %+v", event)
	}
}

func TestEventBuilder_LogTo(t *testing.T) {
	rb := NewRingBuffer(10)
	NewEvent(EventFacadeCreated).Object("OriginUser").LogTo(rb)

	if rb.Count() != 1 {
		t.Errorf("Count() = %d, want 1", rb.Count())
	}
}

func TestNoOpLogger(t *testing.T) {
	var logger NoOpLogger

	logger.Log(Event{})
	unsubscribe := logger.Subscribe(func(e Event) {})
	unsubscribe()
	_ = logger.Recent(10)
	_ = logger.RecentByObject("x", 10)
	_ = logger.RecentByType(EventCallQueued, 10)
}

func TestEvent_String(t *testing.T) {
	str := Event{Type: EventSignalRelayed, Signal: "CLIENT_AUTHCHANGED"}.String()
	if !strings.HasPrefix(str, "{") {
		t.Errorf("String() = %q, want JSON", str)
	}
	if !strings.Contains(str, `"status":"unresolved"`) {
		t.Errorf("String() = %q, want status rendered by name", str)
	}
}
