// Package reconcile merges authoritative server snapshots with locally
// pending optimistic mutations. A field with an in-flight mutation
// keeps its optimistic value until the write resolves; once the
// pending entry is retired the next snapshot is trusted
// unconditionally. Snapshots older than one already merged are
// discarded.
package reconcile

import "sync"

type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	OutcomeFailed
)

// Delta is an optimistic value that is relative to whatever the server
// reports, mirroring the relative operations sent over the wire. All
// pending deltas for one field sum on top of the server value.
type Delta int64

// Mutation describes one optimistic local change, keyed by
// (entity id, field). Value is either an absolute value or a Delta.
type Mutation struct {
	EntityID string
	Field    string
	Value    any
}

// Pending is the handle returned by ApplyOptimistic. The caller
// resolves it exactly once when the corresponding write settles.
type Pending struct {
	mutation Mutation
	retired  bool
}

func (p *Pending) Mutation() Mutation { return p.mutation }

type key struct {
	entityID string
	field    string
}

type Reconciler struct {
	mu      sync.Mutex
	pending map[key][]*Pending
	applied map[string]int64
}

func New() *Reconciler {
	return &Reconciler{
		pending: make(map[key][]*Pending),
		applied: make(map[string]int64),
	}
}

// ApplyOptimistic registers a local mutation and returns its handle.
// Multiple pendings on one field stack in application order;
// last-intent-wins for absolute values.
func (r *Reconciler) ApplyOptimistic(m Mutation) *Pending {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &Pending{mutation: m}
	k := key{m.EntityID, m.Field}
	r.pending[k] = append(r.pending[k], p)
	return p
}

// Resolve retires a pending entry. The outcome does not change the
// merge rule: either way the optimistic value stops overriding server
// state, which on failure is exactly the rollback the caller needs.
func (r *Reconciler) Resolve(p *Pending, _ Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.retired {
		return
	}
	p.retired = true
	k := key{p.mutation.EntityID, p.mutation.Field}
	entries := r.pending[k]
	for i, e := range entries {
		if e == p {
			r.pending[k] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(r.pending[k]) == 0 {
		delete(r.pending, k)
	}
}

func (r *Reconciler) HasPending(entityID, field string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[key{entityID, field}]) > 0
}

// Merge gates the snapshot by version and returns the effective view:
// server fields, with every field that has pending mutations replaced
// by its optimistic value. Returns ok=false for stale snapshots, which
// must be discarded without touching local state.
func (r *Reconciler) Merge(entityID string, version int64, server map[string]any) (map[string]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.applied[entityID]; ok && version <= last {
		return nil, false
	}
	r.applied[entityID] = version
	return r.overlayLocked(entityID, server), true
}

// Overlay applies pending mutations without the version gate, for
// re-deriving the local view after an optimistic apply or a resolve.
func (r *Reconciler) Overlay(entityID string, server map[string]any) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlayLocked(entityID, server)
}

func (r *Reconciler) overlayLocked(entityID string, server map[string]any) map[string]any {
	effective := make(map[string]any, len(server))
	for k, v := range server {
		effective[k] = v
	}
	for k, entries := range r.pending {
		if k.entityID != entityID || len(entries) == 0 {
			continue
		}
		effective[k.field] = resolveValue(effective[k.field], entries)
	}
	return effective
}

func resolveValue(base any, entries []*Pending) any {
	// Deltas accumulate on the server base; an absolute value replaces
	// it, with the newest absolute winning and later deltas applying on
	// top of it.
	current := base
	for _, e := range entries {
		if d, ok := e.mutation.Value.(Delta); ok {
			current = asInt(current) + int64(d)
		} else {
			current = e.mutation.Value
		}
	}
	return current
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
