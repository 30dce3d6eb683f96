package gatekit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestChannelSinkDeliversEvents(t *testing.T) {
	sink := NewChannelSink(4)
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, sink)
	defer dispatcher.Close()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "gate.denied", AccountID: "u1"})

	select {
	case event := <-sink.Events():
		if event.EventType != "gate.denied" || event.AccountID != "u1" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the worker, second fills the buffer, the rest drop.
	for i := 0; i < 8; i++ {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e"})
	}

	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}

	close(block)
	dispatcher.Close()
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, AuditEvent) {
	<-s.release
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e"})
	}
	dispatcher.Close()

	received := 0
	for {
		select {
		case <-sink.Events():
			received++
		default:
			if received != 5 {
				t.Fatalf("expected 5 drained events, got %d", received)
			}
			return
		}
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if dispatcher != nil {
		t.Fatal("disabled audit must not start a dispatcher")
	}
	// Nil receivers must be safe.
	dispatcher.Emit(context.Background(), AuditEvent{})
	dispatcher.Close()
	if dispatcher.Dropped() != 0 {
		t.Fatal("nil dispatcher reports zero drops")
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{EventType: "totp.verify", AccountID: "u1", Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: "gate.denied", Error: "rate_limited"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var event AuditEvent
	if err := json.Unmarshal(lines[0], &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.EventType != "totp.verify" || !event.Success {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestZapSinkMapsSeverityToLevel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), AuditEvent{EventType: "lockout.engaged", Severity: SeverityCritical})
	sink.Emit(context.Background(), AuditEvent{EventType: "session.create", Severity: SeverityInfo, AccountID: "u1"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.ErrorLevel {
		t.Fatalf("critical must log at error level, got %v", entries[0].Level)
	}
	if entries[1].Level != zap.InfoLevel {
		t.Fatalf("info must log at info level, got %v", entries[1].Level)
	}
	if entries[1].ContextMap()["account_id"] != "u1" {
		t.Fatal("expected account_id field")
	}
}
