package download

import "sync"

// tracker aggregates per-file progress for one file-set session. Every
// method is safe for concurrent use by transfer workers.
type tracker struct {
	mu        sync.Mutex
	total     int
	completed int
	inflight  map[int]float64
}

func newTracker(total, completed int) *tracker {
	return &tracker{total: total, completed: completed, inflight: make(map[int]float64)}
}

// update records the fraction of file i received so far and returns the
// new aggregate.
func (t *tracker) update(i int, frac float64) float64 {
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[i] = frac
	return t.fractionLocked()
}

// complete counts file i as placed and returns the new aggregate.
func (t *tracker) complete(i int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, i)
	t.completed++
	return t.fractionLocked()
}

// drop forgets an in-flight file that failed.
func (t *tracker) drop(i int) {
	t.mu.Lock()
	delete(t.inflight, i)
	t.mu.Unlock()
}

func (t *tracker) counts() (completed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.total
}

func (t *tracker) fraction() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fractionLocked()
}

func (t *tracker) fractionLocked() float64 {
	if t.total <= 0 {
		return 1
	}
	sum := float64(t.completed)
	for _, f := range t.inflight {
		sum += f
	}
	v := sum / float64(t.total)
	if v > 1 {
		v = 1
	}
	return v
}
