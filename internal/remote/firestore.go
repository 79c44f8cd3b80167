package remote

import (
	"context"
	"errors"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/rapidoc/docsync/internal/document"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps one Firestore document per owner in a collection
// (default "users"), with the owner's set in a "documents" array field.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = "users"
	}
	return &FirestoreStore{client: client, collection: collection}
}

func (f *FirestoreStore) ref(ownerID string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(ownerID)
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) ([]document.Document, error) {
	var rec ownerRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, err
	}
	if rec.Documents == nil {
		rec.Documents = []document.Document{}
	}
	return rec.Documents, nil
}

func (f *FirestoreStore) Get(ctx context.Context, ownerID string) ([]document.Document, error) {
	snap, err := f.ref(ownerID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, document.ErrNotFound
		}
		return nil, err
	}
	return decodeSnapshot(snap)
}

func (f *FirestoreStore) Put(ctx context.Context, ownerID string, docs []document.Document) error {
	if err := document.ValidateSet(ownerID, docs); err != nil {
		return err
	}
	_, err := f.ref(ownerID).Set(ctx, newOwnerRecord(ownerID, docs))
	return err
}

func (f *FirestoreStore) QueryByCollaborator(ctx context.Context, userID string) ([]document.Document, error) {
	snaps, err := f.client.Collection(f.collection).Where("collaboratorIds", "array-contains", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := []document.Document{}
	for _, snap := range snaps {
		docs, err := decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, withCollaborator(docs, userID)...)
	}
	return out, nil
}

func (f *FirestoreStore) QueryByOwner(ctx context.Context, userID string) ([]document.Document, error) {
	docs, err := f.Get(ctx, userID)
	if errors.Is(err, document.ErrNotFound) {
		return []document.Document{}, nil
	}
	return docs, err
}

// Subscribe attaches a snapshot listener to the owner's record. A record that
// does not exist yet is reported as an empty set.
func (f *FirestoreStore) Subscribe(ctx context.Context, ownerID string, fn Callback) (Unsubscribe, error) {
	listenCtx, cancel := context.WithCancel(context.Background())
	it := f.ref(ownerID).Snapshots(listenCtx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if listenCtx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				fn(nil, err)
				return
			}
			if !snap.Exists() {
				fn([]document.Document{}, nil)
				continue
			}
			docs, err := decodeSnapshot(snap)
			if err != nil {
				fn(nil, err)
				return
			}
			fn(docs, nil)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}
