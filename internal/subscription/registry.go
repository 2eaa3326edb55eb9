// Package subscription keeps one live store subscription per watched
// entity, shared by every interested consumer and torn down when the
// last one leaves. The explicit refcount is what keeps snapshot
// listeners from leaking.
package subscription

import (
	"context"
	"log"
	"sync"

	"synapseAPI/internal/store"
)

type Key struct {
	Type string
	ID   string
}

type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

type entry struct {
	sub       *store.Subscription
	refs      int
	listeners map[int64]chan store.Snapshot
	nextID    int64
	last      *store.Snapshot
	done      chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]*entry)}
}

// Listen attaches a consumer to the shared subscription for key,
// opening it on first use. Snapshots are fanned out to every listener
// in delivery order; a late joiner immediately receives the last seen
// snapshot. The returned release function detaches the consumer and
// cancels the underlying subscription when nobody is left.
func (r *Registry) Listen(key Key, open func(ctx context.Context) (*store.Subscription, error)) (<-chan store.Snapshot, func(), error) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		sub, err := open(ctx)
		if err != nil {
			cancel()
			r.mu.Unlock()
			return nil, nil, err
		}
		e = &entry{
			sub:       sub,
			listeners: make(map[int64]chan store.Snapshot),
			done:      make(chan struct{}),
		}
		r.entries[key] = e
		go r.pump(key, e, cancel)
	}
	e.refs++
	id := e.nextID
	e.nextID++
	ch := make(chan store.Snapshot, 16)
	e.listeners[id] = ch
	if e.last != nil {
		ch <- *e.last
	}
	r.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { r.release(key, id) })
	}
	return ch, release, nil
}

// Refs reports the current consumer count for key.
func (r *Registry) Refs(key Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.refs
	}
	return 0
}

func (r *Registry) release(key Key, id int64) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	if ch, ok := e.listeners[id]; ok {
		delete(e.listeners, id)
		close(ch)
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	r.mu.Unlock()

	e.sub.Cancel()
	<-e.done
}

func (r *Registry) pump(key Key, e *entry, cancel context.CancelFunc) {
	defer close(e.done)
	defer cancel()
	for snap := range e.sub.C {
		r.mu.Lock()
		e.last = &snap
		for id, ch := range e.listeners {
			select {
			case ch <- snap:
			default:
				// Listener is not draining; drop the oldest queued snapshot
				// so it still converges on the newest state.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- snap:
				default:
					log.Printf("Registry: dropping snapshot for %s/%s listener %d", key.Type, key.ID, id)
				}
			}
		}
		r.mu.Unlock()
	}
}
