package testfixtures

import "testing"

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("session")

	first := gen.Next()
	second := gen.Next()

	if first != "session-0001" || second != "session-0002" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
}

func TestIDGeneratorCanReset(t *testing.T) {
	gen := NewIDGenerator("")
	_ = gen.Next()
	gen.Reset()

	if next := gen.Next(); next != "rec-0001" {
		t.Fatalf("expected rec-0001 after reset, got %q", next)
	}
}

func TestNilIDGeneratorFallsBack(t *testing.T) {
	var gen *IDGenerator
	if gen.NextFunc() != nil {
		t.Fatal("expected nil generator function so stores use their default")
	}
}
