package remote

import (
	"context"

	"github.com/rapidoc/docsync/internal/document"
	"github.com/rapidoc/docsync/pkg/logger"
)

// Archiver receives a copy of every successful whole-set write.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, ownerID string, docs []document.Document) error
}

// ArchivingStore decorates a Store so each successful Put is also archived.
// Archive failures are logged and never fail the write.
type ArchivingStore struct {
	Store
	archive Archiver
}

func WithArchive(s Store, a Archiver) *ArchivingStore {
	return &ArchivingStore{Store: s, archive: a}
}

func (a *ArchivingStore) Put(ctx context.Context, ownerID string, docs []document.Document) error {
	if err := a.Store.Put(ctx, ownerID, docs); err != nil {
		return err
	}
	if err := a.archive.ArchiveSnapshot(ctx, ownerID, docs); err != nil {
		logger.Warnf("archive snapshot for %s: %v", ownerID, err)
	}
	return nil
}
