package logring

import (
	"testing"

	"github.com/gfpw/microkernelia/internal/layout"
)

func TestWriteDrainOrder(t *testing.T) {
	var r Ring
	r.WriteString("hello")

	out := make([]byte, 16)
	n := r.Drain(out)
	if string(out[:n]) != "hello" {
		t.Fatalf("got %q, want %q", out[:n], "hello")
	}
}

func TestDrainAdvancesTail(t *testing.T) {
	var r Ring
	r.WriteString("abcdef")

	first := make([]byte, 3)
	n := r.Drain(first)
	if n != 3 || string(first) != "abc" {
		t.Fatalf("first drain = %q (n=%d)", first[:n], n)
	}

	second := make([]byte, 16)
	n = r.Drain(second)
	if string(second[:n]) != "def" {
		t.Fatalf("second drain = %q, want %q", second[:n], "def")
	}

	n = r.Drain(second)
	if n != 0 {
		t.Fatalf("expected empty drain after exhausting ring, got n=%d", n)
	}
}

func TestOverwriteDropsOldestAndStaysWithinCapacity(t *testing.T) {
	var r Ring
	big := make([]byte, layout.LogRingSize+10)
	for i := range big {
		big[i] = byte(i)
	}
	r.Write(big)

	out := make([]byte, layout.LogRingSize)
	n := r.Drain(out)
	if n != layout.LogRingSize {
		t.Fatalf("expected to drain exactly capacity bytes, got %d", n)
	}
	// The oldest 10 bytes (0..9) were overwritten; the first byte drained
	// should be byte value 10, the first byte that survived.
	if out[0] != 10 {
		t.Fatalf("expected oldest surviving byte to be 10, got %d", out[0])
	}
}

func TestDoubleDrainReturnsSameSequenceFromNewTail(t *testing.T) {
	var r Ring
	r.WriteString("xyz")

	firstOut := make([]byte, 1)
	r.Drain(firstOut)

	r.WriteString("123")
	rest := make([]byte, 16)
	n := r.Drain(rest)
	if string(rest[:n]) != "yz123" {
		t.Fatalf("got %q, want %q", rest[:n], "yz123")
	}
}
