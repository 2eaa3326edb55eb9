package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store with the same observable semantics as
// the Firestore adapter: atomic batches, per-document versions that
// grow in commit order, and full-result-set snapshot fan-out to
// subscribers. It backs every test in this repo and works as a local
// dev backend.
type Memory struct {
	mu          sync.Mutex
	seq         int64
	collections map[string]map[string]*memDoc
	subs        map[int64]*memSub
	nextSubID   int64

	failNext  error
	writeHook func(kind, collection, id string) error
}

type memDoc struct {
	version int64
	fields  map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]*memDoc),
		subs:        make(map[int64]*memSub),
	}
}

// FailNextWrite makes the next mutating call (Write, WriteAtomic or
// Create) return err without touching any document.
func (m *Memory) FailNextWrite(err error) {
	m.mu.Lock()
	m.failNext = err
	m.mu.Unlock()
}

// SetWriteHook installs a hook called before every mutating call, with
// no store lock held. A non-nil return aborts the call with that
// error; a hook that blocks holds the write in flight, which is how
// tests gate unconfirmed writes.
func (m *Memory) SetWriteHook(hook func(kind, collection, id string) error) {
	m.mu.Lock()
	m.writeHook = hook
	m.mu.Unlock()
}

func (m *Memory) beforeWrite(kind, collection, id string) error {
	m.mu.Lock()
	err := m.failNext
	m.failNext = nil
	hook := m.writeHook
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		return hook(kind, collection, id)
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Version: doc.version, Fields: CopyFields(doc.fields)}, nil
}

func (m *Memory) Query(ctx context.Context, collection string, preds []Predicate) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryLocked(collection, preds), nil
}

func (m *Memory) queryLocked(collection string, preds []Predicate) []Document {
	var out []Document
	for id, doc := range m.collections[collection] {
		if matchesAll(id, doc.fields, preds) {
			out = append(out, Document{ID: id, Version: doc.version, Fields: CopyFields(doc.fields)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) Subscribe(ctx context.Context, collection string, preds []Predicate) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := newMemSub(collection, preds)
	go sub.run()

	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = sub
	// Initial delivery: the current result set at the current commit point.
	sub.enqueue(Snapshot{Docs: m.queryLocked(collection, preds), Version: m.seq})
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		sub.stopNow()
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.stop:
		}
	}()
	return NewSubscription(sub.out, cancel), nil
}

func (m *Memory) Write(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.beforeWrite("write", collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	doc := m.docLocked(collection, id)
	mergeFields(doc.fields, fields)
	doc.version = m.seq
	m.fanOutLocked(collection)
	return nil
}

func (m *Memory) WriteAtomic(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	if err := m.beforeWrite("writeAtomic", ops[0].Collection, ops[0].ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate every precondition before applying anything, so the batch
	// is all-or-nothing.
	for _, op := range ops {
		_, exists := m.collections[op.Collection][op.ID]
		if op.MustExist && !exists {
			return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, ErrPreconditionFailed)
		}
		switch op.Kind {
		case OpAddToSet, OpRemoveFromSet, OpIncrement:
			// Field-level updates require the target document, matching the
			// Firestore Update semantics the production adapter uses.
			if !exists {
				return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, ErrPreconditionFailed)
			}
		}
	}

	m.seq++
	touched := make(map[string]bool)
	for _, op := range ops {
		touched[op.Collection] = true
		switch op.Kind {
		case OpSetFields:
			doc := m.docLocked(op.Collection, op.ID)
			mergeFields(doc.fields, op.Fields)
			doc.version = m.seq
		case OpDelete:
			delete(m.collections[op.Collection], op.ID)
		case OpAddToSet:
			doc := m.collections[op.Collection][op.ID]
			doc.fields[op.Field] = unionInto(doc.fields[op.Field], op.Value)
			doc.version = m.seq
		case OpRemoveFromSet:
			doc := m.collections[op.Collection][op.ID]
			doc.fields[op.Field] = removeFrom(doc.fields[op.Field], op.Value)
			doc.version = m.seq
		case OpIncrement:
			doc := m.collections[op.Collection][op.ID]
			doc.fields[op.Field] = FieldInt(doc.fields, op.Field) + op.By
			doc.version = m.seq
		}
	}
	for collection := range touched {
		m.fanOutLocked(collection)
	}
	return nil
}

func (m *Memory) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := m.beforeWrite("create", collection, id); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	doc := m.docLocked(collection, id)
	mergeFields(doc.fields, fields)
	doc.version = m.seq
	m.fanOutLocked(collection)
	return id, nil
}

func (m *Memory) docLocked(collection, id string) *memDoc {
	col := m.collections[collection]
	if col == nil {
		col = make(map[string]*memDoc)
		m.collections[collection] = col
	}
	doc := col[id]
	if doc == nil {
		doc = &memDoc{fields: make(map[string]any)}
		col[id] = doc
	}
	return doc
}

func (m *Memory) fanOutLocked(collection string) {
	for _, sub := range m.subs {
		if sub.collection == collection {
			sub.enqueue(Snapshot{Docs: m.queryLocked(collection, sub.preds), Version: m.seq})
		}
	}
}

// memSub decouples commit from delivery: snapshots queue up in commit
// order and a dedicated goroutine feeds the subscriber channel, so a
// slow consumer never blocks writers.
type memSub struct {
	collection string
	preds      []Predicate

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Snapshot
	out      chan Snapshot
	stop     chan struct{}
	stopOnce sync.Once
}

func newMemSub(collection string, preds []Predicate) *memSub {
	s := &memSub{
		collection: collection,
		preds:      preds,
		out:        make(chan Snapshot, 1),
		stop:       make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memSub) stopNow() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.cond.Broadcast()
}

func (s *memSub) enqueue(snap Snapshot) {
	s.mu.Lock()
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *memSub) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			select {
			case <-s.stop:
				s.mu.Unlock()
				close(s.out)
				return
			default:
			}
			s.cond.Wait()
		}
		snap := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- snap:
		case <-s.stop:
			close(s.out)
			return
		}
	}
}

func matchesAll(id string, fields map[string]any, preds []Predicate) bool {
	for _, p := range preds {
		var actual any
		if p.Field == FieldID {
			actual = id
		} else {
			actual = fields[p.Field]
		}
		if !matches(actual, p.Op, p.Value) {
			return false
		}
	}
	return true
}

func matches(actual any, op string, expected any) bool {
	if op == "==" {
		return equalValues(actual, expected)
	}
	cmp, ok := compareValues(actual, expected)
	if !ok {
		return false
	}
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func equalValues(a, b any) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return a == b
}

func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1, true
			case av > bv:
				return 1, true
			}
			return 0, true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	}
	an, aok := toInt64(a)
	bn, bok := toInt64(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func mergeFields(dst, src map[string]any) {
	for k, v := range src {
		switch t := v.(type) {
		case IncrementValue:
			dst[k] = FieldInt(dst, k) + t.By
		case ArrayUnionValue:
			cur := dst[k]
			for _, e := range t.Elems {
				cur = unionInto(cur, e)
			}
			dst[k] = cur
		case ArrayRemoveValue:
			cur := dst[k]
			for _, e := range t.Elems {
				cur = removeFrom(cur, e)
			}
			dst[k] = cur
		default:
			dst[k] = CopyValue(v)
		}
	}
}

func unionInto(cur any, elem any) []any {
	list := asList(cur)
	for _, e := range list {
		if equalValues(e, elem) {
			return list
		}
	}
	return append(list, elem)
}

func removeFrom(cur any, elem any) []any {
	list := asList(cur)
	out := make([]any, 0, len(list))
	for _, e := range list {
		if !equalValues(e, elem) {
			out = append(out, e)
		}
	}
	return out
}

func asList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case nil:
		return nil
	}
	return nil
}

// CopyFields deep-copies a field map. Snapshot documents are shared
// between subscribers, so anything that mutates fields locally must
// copy first.
func CopyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = CopyValue(v)
	}
	return out
}

func CopyValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CopyValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case map[string]any:
		return CopyFields(t)
	}
	return v
}
