package library

import "testing"

func TestQueueFIFOAcrossResize(t *testing.T) {
	q := NewQueue[string](2)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		q.Push(s)
	}
	if q.Len() != 5 {
		t.Fatalf("expected 5 queued, got %d", q.Len())
	}
	first, _ := q.Pop()
	if first != "a" {
		t.Fatalf("expected a, got %s", first)
	}
	q.Push("f")
	got := q.Drain()
	want := []string{"b", "c", "d", "e", "f"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("expected empty queue")
	}
}
