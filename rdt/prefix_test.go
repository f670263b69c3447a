package rdt

import "testing"

type chunk struct {
	seq Value
	n   Size
}

func TestLongestPrefixPopTrueRetainsAnchor(t *testing.T) {
	items := []chunk{{0, 4}, {4, 4}, {12, 4}, {8, 4}}
	last, rest, ok := LongestPrefix(items, func(c chunk) Value { return c.seq }, func(c chunk) Size { return c.n }, 0, true)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if last.seq != 12 {
		t.Fatalf("last.seq = %d, want 12", last.seq)
	}
	if len(rest) != 1 || rest[0].seq != 12 {
		t.Fatalf("rest = %v, want [{12,4}] (anchor retained)", rest)
	}
}

func TestLongestPrefixGapLeavesAnchorAndRemainder(t *testing.T) {
	items := []chunk{{0, 4}, {4, 4}, {16, 4}}
	last, rest, ok := LongestPrefix(items, func(c chunk) Value { return c.seq }, func(c chunk) Size { return c.n }, 0, true)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if last.seq != 4 {
		t.Fatalf("last.seq = %d, want 4", last.seq)
	}
	if len(rest) != 2 || rest[0].seq != 4 || rest[1].seq != 16 {
		t.Fatalf("rest = %v, want [{4,4},{16,4}] (anchor + remainder)", rest)
	}
}

func TestLongestPrefixNoMatchAtStart(t *testing.T) {
	items := []chunk{{4, 4}, {8, 4}}
	_, rest, ok := LongestPrefix(items, func(c chunk) Value { return c.seq }, func(c chunk) Size { return c.n }, 0, true)
	if ok {
		t.Fatal("expected ok=false when no item matches start")
	}
	if rest != nil {
		t.Fatalf("rest = %v, want nil", rest)
	}
}

func TestLongestPrefixPopFalseReturnsRunItself(t *testing.T) {
	items := []chunk{{0, 4}, {4, 4}, {16, 4}}
	last, rest, ok := LongestPrefix(items, func(c chunk) Value { return c.seq }, func(c chunk) Size { return c.n }, 0, false)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if last.seq != 4 {
		t.Fatalf("last.seq = %d, want 4", last.seq)
	}
	if len(rest) != 2 || rest[0].seq != 0 || rest[1].seq != 4 {
		t.Fatalf("rest = %v, want [{0,4},{4,4}]", rest)
	}
}
