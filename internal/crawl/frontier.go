package crawl

import "sync"

// frontier is the FIFO work queue for one job. pop blocks while the
// queue is empty but other workers are still busy, since their pages may
// discover new links; it returns false once the queue is empty and
// nothing is in flight, or after close.
type frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []pageItem
	inflight int
	closed   bool
}

func newFrontier() *frontier {
	f := &frontier{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *frontier) push(it pageItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.items = append(f.items, it)
	f.cond.Signal()
}

func (f *frontier) pop() (pageItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.closed && len(f.items) == 0 {
			return pageItem{}, false
		}
		if len(f.items) > 0 {
			it := f.items[0]
			f.items = f.items[1:]
			f.inflight++
			return it, true
		}
		if f.inflight == 0 {
			return pageItem{}, false
		}
		f.cond.Wait()
	}
}

// taskDone marks one popped item finished and wakes waiters so they can
// re-check for exhaustion.
func (f *frontier) taskDone() {
	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()
	f.cond.Broadcast()
}

// close discards queued work and unblocks every waiter. In-flight pages
// finish on their own.
func (f *frontier) close() {
	f.mu.Lock()
	f.closed = true
	f.items = nil
	f.mu.Unlock()
	f.cond.Broadcast()
}
