package store

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore adapts a Cloud Firestore client to the Store contract.
// The mapping is direct: WriteAtomic -> WriteBatch, add-to-set /
// remove-from-set -> ArrayUnion / ArrayRemove, increment ->
// firestore.Increment, Subscribe -> query snapshot listeners.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return Document{
		ID:      snap.Ref.ID,
		Version: snap.UpdateTime.UnixNano(),
		Fields:  snap.Data(),
	}, nil
}

func (f *Firestore) Query(ctx context.Context, collection string, preds []Predicate) ([]Document, error) {
	it := f.buildQuery(collection, preds).Documents(ctx)
	defer it.Stop()

	var out []Document
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", collection, err)
		}
		out = append(out, Document{
			ID:      snap.Ref.ID,
			Version: snap.UpdateTime.UnixNano(),
			Fields:  snap.Data(),
		})
	}
	return out, nil
}

func (f *Firestore) Subscribe(ctx context.Context, collection string, preds []Predicate) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	it := f.buildQuery(collection, preds).Snapshots(ctx)
	ch := make(chan Snapshot, 16)

	go func() {
		defer close(ch)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					log.Printf("Firestore: snapshot stream for %s ended: %v", collection, err)
				}
				return
			}
			snap := Snapshot{Version: qs.ReadTime.UnixNano()}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					log.Printf("Firestore: snapshot stream for %s ended: %v", collection, err)
				}
				return
			}
			for _, d := range docs {
				snap.Docs = append(snap.Docs, Document{
					ID:      d.Ref.ID,
					Version: d.UpdateTime.UnixNano(),
					Fields:  d.Data(),
				})
			}
			select {
			case ch <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return NewSubscription(ch, cancel), nil
}

func (f *Firestore) Write(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := f.client.Collection(collection).Doc(id).Set(ctx, toFirestoreFields(fields), firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}
	return nil
}

func (f *Firestore) WriteAtomic(ctx context.Context, ops []Op) error {
	batch := f.client.Batch()
	for _, op := range ops {
		ref := f.client.Collection(op.Collection).Doc(op.ID)
		switch op.Kind {
		case OpSetFields:
			batch.Set(ref, toFirestoreFields(op.Fields), firestore.MergeAll)
		case OpDelete:
			if op.MustExist {
				batch.Delete(ref, firestore.Exists)
			} else {
				batch.Delete(ref)
			}
		case OpAddToSet:
			batch.Update(ref, []firestore.Update{{Path: op.Field, Value: firestore.ArrayUnion(op.Value)}})
		case OpRemoveFromSet:
			batch.Update(ref, []firestore.Update{{Path: op.Field, Value: firestore.ArrayRemove(op.Value)}})
		case OpIncrement:
			batch.Update(ref, []firestore.Update{{Path: op.Field, Value: firestore.Increment(op.By)}})
		}
	}
	if _, err := batch.Commit(ctx); err != nil {
		switch status.Code(err) {
		case codes.NotFound, codes.FailedPrecondition:
			return fmt.Errorf("batch commit rejected: %w", ErrPreconditionFailed)
		}
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (f *Firestore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	ref, _, err := f.client.Collection(collection).Add(ctx, toFirestoreFields(fields))
	if err != nil {
		return "", fmt.Errorf("failed to create in %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (f *Firestore) buildQuery(collection string, preds []Predicate) firestore.Query {
	q := f.client.Collection(collection).Query
	for _, p := range preds {
		if p.Field == FieldID {
			value := p.Value
			if id, ok := value.(string); ok {
				value = f.client.Collection(collection).Doc(id)
			}
			q = q.Where(firestore.DocumentID, p.Op, value)
			continue
		}
		q = q.Where(p.Field, p.Op, p.Value)
	}
	return q
}

func toFirestoreFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case IncrementValue:
			out[k] = firestore.Increment(t.By)
		case ArrayUnionValue:
			out[k] = firestore.ArrayUnion(t.Elems...)
		case ArrayRemoveValue:
			out[k] = firestore.ArrayRemove(t.Elems...)
		default:
			out[k] = v
		}
	}
	return out
}
