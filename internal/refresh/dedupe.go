package refresh

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type tsDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newTSDedupe(size int) *tsDedupe {
	c, _ := lru.New[string, int64](size)
	return &tsDedupe{lru: c}
}

// stale reports whether an event at ts for key is not newer than the last
// applied one.
func (d *tsDedupe) stale(key string, ts int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && ts <= last
}

func (d *tsDedupe) applied(key string, ts int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && ts <= last {
		return
	}
	d.lru.Add(key, ts)
}
