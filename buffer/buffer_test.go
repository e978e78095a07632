package buffer

import (
	"sync"
	"testing"
)

func TestPushReturnsPostPushLength(t *testing.T) {
	b := New[int]()

	if n := b.Push(1); n != 1 {
		t.Fatalf("expected length 1, got %d", n)
	}
	if n := b.Push(2); n != 2 {
		t.Fatalf("expected length 2, got %d", n)
	}
}

func TestDrainReturnsInsertionOrder(t *testing.T) {
	b := New[int]()
	for i := 0; i < 5; i++ {
		b.Push(i)
	}

	drained := b.Drain()
	for i, v := range drained {
		if v != i {
			t.Fatalf("expected drained[%d] == %d, got %d", i, i, v)
		}
	}
}

func TestDrainIsAtomicAndExhaustive(t *testing.T) {
	b := New[int]()
	b.Push(1)
	b.Push(2)

	first := b.Drain()
	second := b.Drain()

	if len(first) != 2 {
		t.Fatalf("expected first drain to return 2 items, got %d", len(first))
	}
	if len(second) != 0 {
		t.Fatalf("expected second drain to return no items, got %d", len(second))
	}
}

func TestConcurrentPushesAndOneDrainNeverDuplicateOrLoseItems(t *testing.T) {
	b := New[int]()
	const writers = 20
	const perWriter = 50

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.Push(i)
			}
		}()
	}
	wg.Wait()

	drained := b.Drain()
	if len(drained) != writers*perWriter {
		t.Fatalf("expected %d items, got %d", writers*perWriter, len(drained))
	}
	if b.Len() != 0 {
		t.Fatalf("expected buffer empty after drain, got %d remaining", b.Len())
	}
}
