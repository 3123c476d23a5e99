package eventstore

import "testing"

func TestGlobalPosition_MonotoneWithinStream(t *testing.T) {
	ts := int64(1_700_000_000_000)
	p1 := globalPosition(ts, "order", "order-1", 1)
	p2 := globalPosition(ts, "order", "order-1", 2)
	if p2 <= p1 {
		t.Fatalf("expected version 2 to order after version 1: %d <= %d", p2, p1)
	}
}

func TestGlobalPosition_DeterministicForSameInputs(t *testing.T) {
	ts := int64(1_700_000_000_000)
	a := globalPosition(ts, "order", "order-1", 5)
	b := globalPosition(ts, "order", "order-1", 5)
	if a != b {
		t.Fatalf("expected deterministic output, got %d and %d", a, b)
	}
}

func TestStreamHash_BoundedToThreeDigits(t *testing.T) {
	h := streamHash("order", "order-1")
	if h < 0 || h >= 1000 {
		t.Fatalf("expected hash in [0,1000), got %d", h)
	}
}
