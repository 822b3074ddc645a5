package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type blockingSink struct {
	release chan struct{}
	// entered, when set, is signalled each time Emit starts blocking.
	entered chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must not count drops")
	}
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "session_created"})
	}
	d.Close()

	got := 0
	timeout := time.After(time.Second)
	for got < 3 {
		select {
		case <-sink.Events():
			got++
		case <-timeout:
			t.Fatalf("expected 3 events, got %d", got)
		}
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "session_verified"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherCountsDropsPerEventType(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := &blockingSink{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Logger: zap.New(core)}, sink)

	refreshed := Event{EventType: "session_refreshed", SessionHandle: "h1", Transfer: "cookie"}
	d.Emit(context.Background(), refreshed)
	<-sink.entered
	// The worker is stuck on the first event; the second fills the buffer.
	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), refreshed)
	}
	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "token_theft_detected", SessionHandle: "h2", Transfer: "header"})
	}

	byType := d.DroppedByType()
	if byType["token_theft_detected"] != 3 {
		t.Fatalf("expected 3 theft drops, got %v", byType)
	}
	if byType["session_refreshed"] != 2 {
		t.Fatalf("expected 2 refresh drops, got %v", byType)
	}
	var sum uint64
	for _, n := range byType {
		sum += n
	}
	if sum != d.Dropped() {
		t.Fatalf("per-type drops %d do not add up to %d", sum, d.Dropped())
	}

	warned := logs.FilterMessage("audit event dropped").FilterLevelExact(zapcore.WarnLevel).All()
	if len(warned) != 2 {
		t.Fatalf("expected one warning per event type, got %d", len(warned))
	}
	fields := logs.FilterField(zap.String("event_type", "token_theft_detected")).All()
	if len(fields) != 3 || fields[0].ContextMap()["session_handle"] != "h2" || fields[0].ContextMap()["transfer_method"] != "header" {
		t.Fatalf("drop log is missing session fields: %+v", fields)
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherCountsDropOnContextDone(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	d.Emit(context.Background(), Event{EventType: "session_created"})
	<-sink.entered
	d.Emit(context.Background(), Event{EventType: "session_created"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// Blocks until the deadline: the worker holds one event and the buffer the other.
	d.Emit(ctx, Event{EventType: "session_revoked"})
	if got := d.DroppedByType()["session_revoked"]; got != 1 {
		t.Fatalf("expected the timed-out event counted as dropped, got %d", got)
	}

	close(sink.release)
	d.Close()
}

type panickingSink struct {
	next *ChannelSink
}

func (s panickingSink) Emit(ctx context.Context, e Event) {
	if e.EventType == "bad" {
		panic("sink failure")
	}
	s.next.Emit(ctx, e)
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := panickingSink{next: NewChannelSink(2)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: zap.New(core)}, sink)

	d.Emit(context.Background(), Event{EventType: "bad", SessionHandle: "h1"})
	d.Emit(context.Background(), Event{EventType: "session_created", SessionHandle: "h2"})
	d.Close()

	select {
	case e := <-sink.next.Events():
		if e.SessionHandle != "h2" {
			t.Fatalf("unexpected event: %+v", e)
		}
	default:
		t.Fatal("event after a sink panic was not delivered")
	}
	if logs.FilterMessage("audit sink panicked").Len() != 1 {
		t.Fatal("expected the sink panic to be logged")
	}
}

func TestDispatcherIgnoresEmitAfterClose(t *testing.T) {
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	d.Close()
	d.Emit(context.Background(), Event{EventType: "late"})

	select {
	case e := <-sink.Events():
		t.Fatalf("unexpected event after close: %+v", e)
	default:
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "session_revoked", SessionHandle: "h1", Success: true})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["session_handle"] != "h1" || decoded["event_type"] != "session_revoked" {
		t.Fatalf("unexpected json: %s", line)
	}
}
