package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

/*
Package ratelimit provides the fixed-window counting primitives behind the
admission pipeline:
  1) Window    — sharded per-key fixed-window quota counter
  2) SlowDown  — secondary counter that converts pressure into latency
  3) RouteLimiter — stricter window that only charges failed attempts

All state is process-local; counters vanish on restart.
*/

const shardCount = 32

// Decision is the outcome of charging one request against a window.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Count     int
	// Reset is when the current window ends and the count recycles.
	Reset time.Time
}

type entry struct {
	count       int
	windowStart time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Window counts events per key in buckets of fixed length. A bucket's count
// is only meaningful while now < windowStart+length; an expired bucket is
// recycled in place with a fresh start. Keys are sharded so one hot client
// cannot serialize the whole table.
type Window struct {
	max     int
	length  time.Duration
	shards  [shardCount]*shard
	nowFunc func() time.Time // for tests; defaults to time.Now
}

// NewWindow creates a counter table admitting at most max events per key
// per window of the given length.
func NewWindow(max int, length time.Duration) *Window {
	if max <= 0 {
		max = 1
	}
	if length <= 0 {
		length = time.Minute
	}
	w := &Window{max: max, length: length, nowFunc: time.Now}
	for i := range w.shards {
		w.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return w
}

func (w *Window) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return w.shards[h.Sum32()%shardCount]
}

// resolve returns the live entry for key, recycling it if the window has
// elapsed. Caller must hold the shard lock.
func (w *Window) resolve(s *shard, key string, now time.Time) *entry {
	en, ok := s.entries[key]
	if !ok {
		en = &entry{windowStart: now}
		s.entries[key] = en
		return en
	}
	if !now.Before(en.windowStart.Add(w.length)) {
		en.count = 0
		en.windowStart = now
	}
	return en
}

// Allow charges one event against key. The increment-and-compare happens
// under the shard lock so two concurrent requests cannot both take the last
// slot. A rejected request leaves the count untouched.
func (w *Window) Allow(key string) Decision {
	now := w.nowFunc()
	s := w.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	en := w.resolve(s, key, now)
	d := Decision{Limit: w.max, Reset: en.windowStart.Add(w.length)}
	if en.count >= w.max {
		d.Count = en.count
		return d
	}
	en.count++
	d.Allowed = true
	d.Count = en.count
	d.Remaining = w.max - en.count
	return d
}

// Tally increments key unconditionally and reports the post-increment count.
// Used by stages that never reject (slow-down).
func (w *Window) Tally(key string) int {
	now := w.nowFunc()
	s := w.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	en := w.resolve(s, key, now)
	en.count++
	return en.count
}

// Refund returns one previously charged slot to key, if its window is still
// live. Lets callers un-count attempts that turned out to succeed.
func (w *Window) Refund(key string) {
	now := w.nowFunc()
	s := w.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	en, ok := s.entries[key]
	if !ok {
		return
	}
	if !now.Before(en.windowStart.Add(w.length)) {
		return
	}
	if en.count > 0 {
		en.count--
	}
}

// Sweep drops every expired entry. Without it, keys seen once would sit in
// the table forever.
func (w *Window) Sweep() {
	now := w.nowFunc()
	for _, s := range w.shards {
		s.mu.Lock()
		for key, en := range s.entries {
			if !now.Before(en.windowStart.Add(w.length)) {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
}

// Janitor sweeps every interval until done is closed.
func (w *Window) Janitor(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		interval = w.length
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.Sweep()
		case <-done:
			return
		}
	}
}

// Len reports the number of tracked keys across all shards.
func (w *Window) Len() int {
	n := 0
	for _, s := range w.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
