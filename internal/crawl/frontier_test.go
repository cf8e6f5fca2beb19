package crawl

import (
	"sync"
	"testing"
	"time"
)

func TestFrontierFIFO(t *testing.T) {
	f := newFrontier()
	f.push(pageItem{url: "a"})
	f.push(pageItem{url: "b"})

	it, ok := f.pop()
	if !ok || it.url != "a" {
		t.Fatalf("expected a, got %v ok=%t", it, ok)
	}
	it, ok = f.pop()
	if !ok || it.url != "b" {
		t.Fatalf("expected b, got %v ok=%t", it, ok)
	}
}

func TestFrontierExhaustsWhenIdle(t *testing.T) {
	f := newFrontier()
	f.push(pageItem{url: "a"})

	if _, ok := f.pop(); !ok {
		t.Fatal("expected item")
	}
	f.taskDone()

	if _, ok := f.pop(); ok {
		t.Fatal("empty frontier with nothing in flight must report exhaustion")
	}
}

func TestFrontierWaitsForInflightWork(t *testing.T) {
	f := newFrontier()
	f.push(pageItem{url: "seed"})

	if _, ok := f.pop(); !ok {
		t.Fatal("expected seed")
	}

	// A second worker blocks: the queue is empty but the first worker may
	// still discover links.
	got := make(chan bool, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ok := f.pop()
		got <- ok
	}()

	select {
	case <-got:
		t.Fatal("pop returned while work was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	f.push(pageItem{url: "discovered"})
	f.taskDone()
	wg.Wait()

	if ok := <-got; !ok {
		t.Fatal("expected the discovered item, got exhaustion")
	}
}

func TestFrontierCloseUnblocks(t *testing.T) {
	f := newFrontier()
	f.push(pageItem{url: "seed"})
	if _, ok := f.pop(); !ok {
		t.Fatal("expected seed")
	}

	done := make(chan bool, 1)
	go func() {
		_, ok := f.pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	f.close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("pop after close must report exhaustion")
		}
	case <-time.After(time.Second):
		t.Fatal("close did not unblock pop")
	}

	f.push(pageItem{url: "late"})
	if _, ok := f.pop(); ok {
		t.Fatal("push after close must be a no-op")
	}
}
