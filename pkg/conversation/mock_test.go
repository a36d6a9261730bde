package conversation

import (
	"context"
	"errors"
	"testing"
)

func TestMockSession(t *testing.T) {
	d := NewMock()
	s, err := d.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ms := d.Last()
	if ms == nil || Session(ms) != s {
		t.Fatal("Last() should return the connected session")
	}

	if err := s.SendAudio([]byte{1}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	if err := s.SendContext("hello"); err != nil {
		t.Fatalf("SendContext() error = %v", err)
	}
	if ms.AudioChunks() != 1 || len(ms.Contexts()) != 1 {
		t.Errorf("captured audio=%d contexts=%d", ms.AudioChunks(), len(ms.Contexts()))
	}

	ms.SimulateAudio("AAAA")
	ev := <-s.Events()
	if ev.Type != EventAudioOutput || ev.Data != "AAAA" {
		t.Errorf("event = %+v", ev)
	}

	_ = s.Close()
	_ = s.Close()
	if _, ok := <-s.Events(); ok {
		t.Error("events should be closed")
	}
	if ms.CloseCalls != 2 {
		t.Errorf("CloseCalls = %d, want 2", ms.CloseCalls)
	}
	if err := s.SendContext("late"); !IsNotConnected(err) {
		t.Errorf("SendContext() after close = %v", err)
	}

	// Emitting after close must not panic.
	ms.SimulateError("ignored")
}

func TestMockDrop(t *testing.T) {
	ms := NewMockSession()
	dropErr := NewConnectionError("read failed", errors.New("reset"), true)
	ms.Drop(dropErr)

	if _, ok := <-ms.Events(); ok {
		t.Error("events should be closed after Drop")
	}
	if !IsTransportError(ms.Err()) {
		t.Errorf("Err() = %v", ms.Err())
	}
	if !ms.IsClosed() {
		t.Error("IsClosed() = false")
	}
}

func TestMockConnectFunc(t *testing.T) {
	d := NewMock()
	d.ConnectFunc = func(context.Context) (Session, error) {
		return nil, ErrAuthFailed
	}
	if _, err := d.Connect(context.Background()); !IsAuthError(err) {
		t.Errorf("Connect() error = %v", err)
	}
	if d.Last() != nil {
		t.Error("Last() should be nil when ConnectFunc is used")
	}
}
