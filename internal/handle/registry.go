package handle

import "sync"

var (
	registryMu sync.Mutex
	registry   = map[int64]*engine{}
	nextHandle int64
)

func register(e *engine) int64 {
	registryMu.Lock()
	defer registryMu.Unlock()
	nextHandle++
	registry[nextHandle] = e
	return nextHandle
}

func lookup(h int64) (*engine, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	e, ok := registry[h]
	return e, ok
}

func unregister(h int64) (*engine, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	e, ok := registry[h]
	if ok {
		delete(registry, h)
	}
	return e, ok
}
