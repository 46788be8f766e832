package repository

import "sync"

// Hub рассылает факт коммита всем открытым в процессе коллекциям раздела
type Hub struct {
	mtx  sync.RWMutex
	subs map[string]map[*Dispatcher]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Dispatcher]struct{}),
	}
}

func (h *Hub) Join(partition string, d *Dispatcher) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	set, ok := h.subs[partition]
	if !ok {
		set = make(map[*Dispatcher]struct{})
		h.subs[partition] = set
	}
	set[d] = struct{}{}
}

func (h *Hub) Leave(partition string, d *Dispatcher) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	set, ok := h.subs[partition]
	if !ok {
		return
	}
	delete(set, d)
	if len(set) == 0 {
		delete(h.subs, partition)
	}
}

func (h *Hub) Publish(partition string) {
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	for d := range h.subs[partition] {
		d.Notify()
	}
}

// Members - число открытых коллекций раздела
func (h *Hub) Members(partition string) int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return len(h.subs[partition])
}
