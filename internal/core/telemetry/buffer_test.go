package telemetry

import (
	"strings"
	"testing"
)

func TestBufferDropsOldest(t *testing.T) {
	b := NewBuffer(10)
	b.Push(LogEntry{Line: "aaaa"})
	b.Push(LogEntry{Line: "bbbb"})
	b.Push(LogEntry{Line: "cccc"})

	if b.Len() != 2 || b.Dropped() != 1 || b.SizeBytes() != 8 {
		t.Fatalf("len = %d dropped = %d size = %d", b.Len(), b.Dropped(), b.SizeBytes())
	}
	got := b.Peek(10)
	if got[0].Line != "bbbb" || got[1].Line != "cccc" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestBufferPeekPop(t *testing.T) {
	b := NewBuffer(100)
	for _, s := range []string{"a", "b", "c"} {
		b.Push(LogEntry{Line: s})
	}
	if got := b.Peek(2); len(got) != 2 || got[1].Line != "b" {
		t.Fatalf("peek = %+v", got)
	}
	b.Pop(2)
	if b.Len() != 1 || b.SizeBytes() != 1 {
		t.Fatalf("len = %d size = %d", b.Len(), b.SizeBytes())
	}
	b.Pop(5)
	if b.Len() != 0 {
		t.Fatal("pop beyond length must empty the buffer")
	}
}

func TestBufferTruncatesOversized(t *testing.T) {
	b := NewBuffer(4)
	b.Push(LogEntry{Line: strings.Repeat("x", 10)})
	if b.SizeBytes() != 4 {
		t.Fatalf("size = %d", b.SizeBytes())
	}
}
