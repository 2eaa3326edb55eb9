package store

import (
	"context"
	"errors"
)

// Collection names used across the engine.
const (
	CollectionUsers          = "users"
	CollectionFriendRequests = "friend_requests"
	CollectionNotifications  = "notifications"
	CollectionPosts          = "posts"
	CollectionComments       = "comments"
	CollectionCommunities    = "communities"
	CollectionDeviceTokens   = "device_tokens"
)

// FieldID is the predicate field that matches a document's id rather
// than one of its stored fields.
const FieldID = "__id__"

var (
	// ErrNotFound is returned by Get when no document has the given id.
	ErrNotFound = errors.New("store: document not found")

	// ErrPreconditionFailed is returned by WriteAtomic when an operation
	// marked MustExist targets a document that no longer exists. The whole
	// batch is rolled back.
	ErrPreconditionFailed = errors.New("store: precondition failed")
)

// Document is a single record as read from the store. Version is
// monotonically increasing per document across commits; a snapshot
// carrying a lower version than one already seen is stale.
type Document struct {
	ID      string
	Version int64
	Fields  map[string]any
}

// Predicate restricts a Query or Subscribe to documents whose field
// compares against Value. Op is one of "==", "<", "<=", ">", ">=".
type Predicate struct {
	Field string
	Op    string
	Value any
}

func Where(field, op string, value any) Predicate {
	return Predicate{Field: field, Op: op, Value: value}
}

// Snapshot is the full result set of a subscribed query at one commit
// point. Snapshots for one subscription are delivered in commit order.
type Snapshot struct {
	Docs    []Document
	Version int64
}

// Subscription is a live query. Snapshots arrive on C until Cancel is
// called or the subscribing context ends.
type Subscription struct {
	C      <-chan Snapshot
	cancel func()
}

func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

func NewSubscription(c <-chan Snapshot, cancel func()) *Subscription {
	return &Subscription{C: c, cancel: cancel}
}

// OpKind enumerates the operations WriteAtomic accepts.
type OpKind int

const (
	OpSetFields OpKind = iota
	OpDelete
	OpAddToSet
	OpRemoveFromSet
	OpIncrement
)

// Op is one entry of an atomic batch. All ops in a batch commit or
// fail together.
type Op struct {
	Collection string
	ID         string
	Kind       OpKind

	Fields map[string]any // OpSetFields (merged into the document)
	Field  string         // OpAddToSet, OpRemoveFromSet, OpIncrement
	Value  any            // OpAddToSet, OpRemoveFromSet
	By     int64          // OpIncrement

	// MustExist makes the batch fail with ErrPreconditionFailed when the
	// target document is gone. The delete-as-terminal-marker transitions
	// rely on this to reject the loser of a race.
	MustExist bool
}

func SetFields(collection, id string, fields map[string]any) Op {
	return Op{Collection: collection, ID: id, Kind: OpSetFields, Fields: fields}
}

func Delete(collection, id string) Op {
	return Op{Collection: collection, ID: id, Kind: OpDelete}
}

func DeleteExisting(collection, id string) Op {
	return Op{Collection: collection, ID: id, Kind: OpDelete, MustExist: true}
}

func AddToSet(collection, id, field string, value any) Op {
	return Op{Collection: collection, ID: id, Kind: OpAddToSet, Field: field, Value: value}
}

func RemoveFromSet(collection, id, field string, value any) Op {
	return Op{Collection: collection, ID: id, Kind: OpRemoveFromSet, Field: field, Value: value}
}

func Increment(collection, id, field string, by int64) Op {
	return Op{Collection: collection, ID: id, Kind: OpIncrement, Field: field, By: by}
}

// Transform values usable inside the field map of Write and
// OpSetFields. They express relative mutations so concurrent writers
// commute instead of racing on read-modify-write.
type IncrementValue struct{ By int64 }

type ArrayUnionValue struct{ Elems []any }

type ArrayRemoveValue struct{ Elems []any }

func Inc(by int64) IncrementValue { return IncrementValue{By: by} }

func Union(elems ...any) ArrayUnionValue { return ArrayUnionValue{Elems: elems} }

func Remove(elems ...any) ArrayRemoveValue { return ArrayRemoveValue{Elems: elems} }

// Store is the record store contract the engines are written against.
// Production runs on Firestore; tests run on the in-memory
// implementation with identical semantics.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, preds []Predicate) ([]Document, error)
	Subscribe(ctx context.Context, collection string, preds []Predicate) (*Subscription, error)

	// Write is a merge-style partial update of a single document. The
	// field map may contain Inc/Union/Remove transform values.
	Write(ctx context.Context, collection, id string, fields map[string]any) error

	// WriteAtomic commits every op or none of them.
	WriteAtomic(ctx context.Context, ops []Op) error

	// Create stores a new document and returns its generated id.
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
}
