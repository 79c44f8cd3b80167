package remote

import (
	"context"
	"errors"
	"sync"

	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ownerRecord is the Mongo (and Firestore) shape of one owner's document set.
// CollaboratorIDs is denormalized so collaborator queries can use an index.
type ownerRecord struct {
	OwnerID         string              `bson:"_id" firestore:"-"`
	Documents       []document.Document `bson:"documents" firestore:"documents"`
	CollaboratorIDs []string            `bson:"collaboratorIds" firestore:"collaboratorIds"`
}

func newOwnerRecord(ownerID string, docs []document.Document) ownerRecord {
	if docs == nil {
		docs = []document.Document{}
	}
	return ownerRecord{OwnerID: ownerID, Documents: docs, CollaboratorIDs: document.CollaboratorIDs(docs)}
}

// MongoStore implements Store over a collection holding one record per owner.
// Subscriptions use change streams, which require a replica set.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	idxModel := mongo.IndexModel{Keys: bson.D{{Key: "collaboratorIds", Value: 1}}}
	if _, err := col.Indexes().CreateOne(context.Background(), idxModel); err != nil {
		logger.Warnf("mongo store: create collaboratorIds index: %v", err)
	}
	return &MongoStore{col: col}
}

func (m *MongoStore) Get(ctx context.Context, ownerID string) ([]document.Document, error) {
	var rec ownerRecord
	if err := m.col.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, err
	}
	if rec.Documents == nil {
		rec.Documents = []document.Document{}
	}
	return rec.Documents, nil
}

func (m *MongoStore) Put(ctx context.Context, ownerID string, docs []document.Document) error {
	if err := document.ValidateSet(ownerID, docs); err != nil {
		return err
	}
	rec := newOwnerRecord(ownerID, docs)
	_, err := m.col.ReplaceOne(ctx, bson.M{"_id": ownerID}, rec, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoStore) QueryByCollaborator(ctx context.Context, userID string) ([]document.Document, error) {
	cur, err := m.col.Find(ctx, bson.M{"collaboratorIds": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []document.Document{}
	for cur.Next(ctx) {
		var rec ownerRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, withCollaborator(rec.Documents, userID)...)
	}
	return out, cur.Err()
}

func (m *MongoStore) QueryByOwner(ctx context.Context, userID string) ([]document.Document, error) {
	docs, err := m.Get(ctx, userID)
	if errors.Is(err, document.ErrNotFound) {
		return []document.Document{}, nil
	}
	return docs, err
}

func (m *MongoStore) Subscribe(ctx context.Context, ownerID string, fn Callback) (Unsubscribe, error) {
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: ownerID}}}}}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := m.col.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cs.Close(context.Background())
		for cs.Next(watchCtx) {
			var ev struct {
				FullDocument *ownerRecord `bson:"fullDocument"`
			}
			if err := cs.Decode(&ev); err != nil {
				logger.Warnf("mongo store: decode change for %s: %v", ownerID, err)
				continue
			}
			if ev.FullDocument == nil {
				continue
			}
			fn(ev.FullDocument.Documents, nil)
		}
		if watchCtx.Err() != nil {
			return
		}
		err := cs.Err()
		if err == nil {
			err = ErrSubscriptionClosed
		}
		fn(nil, err)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}
