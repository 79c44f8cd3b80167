package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository persists sync-session leases. Lookups of unknown tokens return
// (nil, nil).
type Repository interface {
	Create(ctx context.Context, l *Lease) error
	GetByToken(ctx context.Context, token string) (*Lease, error)
	// Touch moves a live lease's expiry; unknown tokens give ErrLeaseNotFound.
	Touch(ctx context.Context, token string, expiresAt time.Time) error
	DeleteByToken(ctx context.Context, token string) error
}

// MongoRepository implements Repository using a Mongo collection. A TTL index
// on expiresAt lets Mongo reap abandoned leases.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(ctx context.Context, col *mongo.Collection) (*MongoRepository, error) {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		return nil, err
	}
	return &MongoRepository{col: col}, nil
}

func (r *MongoRepository) Create(ctx context.Context, l *Lease) error {
	_, err := r.col.InsertOne(ctx, l)
	return err
}

func (r *MongoRepository) GetByToken(ctx context.Context, token string) (*Lease, error) {
	var l Lease
	if err := r.col.FindOne(ctx, bson.M{"token": token}).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *MongoRepository) Touch(ctx context.Context, token string, expiresAt time.Time) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"token": token}, bson.M{"$set": bson.M{"expiresAt": expiresAt}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrLeaseNotFound
	}
	return nil
}

func (r *MongoRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"token": token})
	return err
}

// MemoryRepository keeps leases in process; used for single-replica
// deployments and tests.
type MemoryRepository struct {
	mu     sync.Mutex
	leases map[string]Lease
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{leases: map[string]Lease{}}
}

func (m *MemoryRepository) Create(ctx context.Context, l *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases[l.Token] = *l
	return nil
}

func (m *MemoryRepository) GetByToken(ctx context.Context, token string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[token]
	if !ok {
		return nil, nil
	}
	if l.Expired(time.Now().UTC()) {
		delete(m.leases, token)
		return nil, nil
	}
	return &l, nil
}

func (m *MemoryRepository) Touch(ctx context.Context, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[token]
	if !ok {
		return ErrLeaseNotFound
	}
	l.ExpiresAt = expiresAt
	m.leases[token] = l
	return nil
}

func (m *MemoryRepository) DeleteByToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, token)
	return nil
}
