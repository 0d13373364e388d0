package dropvec

import (
	"reflect"
	"testing"
)

func TestEmptyCapacity(t *testing.T) {
	d := New[int](0)
	d.Push(1)
	d.Push(2)
	if got := d.Iter(); len(got) != 0 {
		t.Fatalf("expected no items for capacity 0, got %v", got)
	}
}

func TestPushBelowCapacity(t *testing.T) {
	d := New[string](5)
	d.Push("a")
	d.Push("b")
	got := d.Iter()
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEvictsOldestWhenFull(t *testing.T) {
	d := New[int](3)
	for i := 1; i <= 5; i++ {
		d.Push(i)
	}
	got := d.Iter()
	want := []int{3, 4, 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLenCapsAtCapacity(t *testing.T) {
	d := New[int](3)
	if d.Len() != 0 {
		t.Fatalf("expected 0 initially, got %d", d.Len())
	}
	for i := 0; i < 10; i++ {
		d.Push(i)
	}
	if d.Len() != 3 {
		t.Fatalf("expected len capped at 3, got %d", d.Len())
	}
}

func TestIterOrderAfterWrapMultipleTimes(t *testing.T) {
	d := New[int](4)
	for i := 0; i < 13; i++ {
		d.Push(i)
	}
	got := d.Iter()
	want := []int{9, 10, 11, 12}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
