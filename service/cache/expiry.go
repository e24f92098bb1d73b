package cache

import (
	"container/heap"
	"sync"
	"time"
)

type expiryItem struct {
	path  string
	gen   uint64
	at    time.Time
	index int
}

type expiryHeap []*expiryItem

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *expiryHeap) Push(x any) {
	item := x.(*expiryItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// sweeper fires expirations from one goroutine. Each path has at most one
// pending item; rescheduling moves it. fire still has to check the generation
// since an access can race with a due item.
type sweeper struct {
	mu     sync.Mutex
	items  expiryHeap
	byPath map[string]*expiryItem
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	fire   func(path string, gen uint64)
}

func newSweeper(fire func(path string, gen uint64)) *sweeper {
	s := &sweeper{
		byPath: map[string]*expiryItem{},
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		fire:   fire,
	}
	go s.run()
	return s
}

func (s *sweeper) schedule(path string, gen uint64, at time.Time) {
	s.mu.Lock()
	if item, ok := s.byPath[path]; ok {
		item.gen = gen
		item.at = at
		heap.Fix(&s.items, item.index)
	} else {
		item = &expiryItem{path: path, gen: gen, at: at}
		heap.Push(&s.items, item)
		s.byPath[path] = item
	}
	s.mu.Unlock()
	s.notify()
}

// cancel drops the pending item of path, if any.
func (s *sweeper) cancel(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.byPath[path]; ok {
		heap.Remove(&s.items, item.index)
		delete(s.byPath, path)
	}
}

func (s *sweeper) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *sweeper) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *sweeper) run() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		s.mu.Lock()
		wait := time.Hour
		if len(s.items) > 0 {
			wait = time.Until(s.items[0].at)
		}
		s.mu.Unlock()
		timer.Reset(wait)

		select {
		case <-s.stop:
			return
		case <-s.wake:
		case <-timer.C:
			for _, item := range s.due(time.Now()) {
				s.fire(item.path, item.gen)
			}
		}
	}
}

func (s *sweeper) due(now time.Time) []expiryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []expiryItem
	for len(s.items) > 0 && !s.items[0].at.After(now) {
		item := heap.Pop(&s.items).(*expiryItem)
		delete(s.byPath, item.path)
		res = append(res, *item)
	}
	return res
}

func (s *sweeper) Close() {
	close(s.stop)
	<-s.done
}
