package rlm

import (
	"testing"

	"github.com/tinychat-dev/tinychat/pkg/protocol"
)

func TestBridge_OrderPreserved(t *testing.T) {
	b := NewBridge()
	want := []string{"one", "two", "three"}
	for _, c := range want {
		b.Push(protocol.Event{Kind: protocol.EventUpdate, Content: c})
	}
	b.Close()

	var got []string
	for ev := range b.Events() {
		got = append(got, ev.Content)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBridge_DrainsBufferedEventsAfterClose(t *testing.T) {
	b := NewBridge()
	b.Push(protocol.Event{Kind: protocol.EventFinal, Content: "answer"})
	b.Close()

	ev, ok := <-b.Events()
	if !ok || ev.Content != "answer" {
		t.Fatalf("buffered event lost: %+v, %v", ev, ok)
	}
	if _, ok := <-b.Events(); ok {
		t.Error("expected closed channel after drain")
	}
}

func TestBridge_CloseIdempotent(t *testing.T) {
	b := NewBridge()
	b.Close()
	b.Close() // must not panic
}
