package cache

import (
	"strings"

	"github.com/rapidoc/docsync/internal/document"
	"golang.org/x/exp/slices"
)

// Result reports what Upsert did with an incoming snapshot.
type Result int

const (
	// Inserted means the id was not cached before.
	Inserted Result = iota
	// Replaced means the incoming snapshot was at least as new as the cached one.
	Replaced
	// Stale means the incoming snapshot was older and was dropped.
	Stale
)

func (r Result) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// Cache is the in-memory id -> Document map for one session. It is not safe
// for concurrent use; the owning engine session serializes access.
type Cache struct {
	docs map[string]document.Document
}

func New() *Cache {
	return &Cache{docs: make(map[string]document.Document)}
}

// Upsert stores d unless the cached copy is strictly newer. An older snapshot
// is a delayed or reordered notification and is silently dropped; equal
// timestamps overwrite.
func (c *Cache) Upsert(d document.Document) Result {
	cur, ok := c.docs[d.ID]
	if !ok {
		c.docs[d.ID] = d.Clone()
		return Inserted
	}
	if d.LastModified.Before(cur.LastModified) {
		return Stale
	}
	c.docs[d.ID] = d.Clone()
	return Replaced
}

// Get returns a copy of the cached document.
func (c *Cache) Get(id string) (document.Document, bool) {
	d, ok := c.docs[id]
	if !ok {
		return document.Document{}, false
	}
	return d.Clone(), true
}

// Delete evicts id.
func (c *Cache) Delete(id string) {
	delete(c.docs, id)
}

// Len reports the number of cached documents.
func (c *Cache) Len() int { return len(c.docs) }

// List returns every cached document, most recently modified first.
func (c *Cache) List() []document.Document {
	return c.Search("")
}

// Search returns cached documents whose name or content contains query
// (case-insensitive), most recently modified first.
func (c *Cache) Search(query string) []document.Document {
	out := make([]document.Document, 0, len(c.docs))
	for _, d := range c.docs {
		if d.Matches(query) {
			out = append(out, d.Clone())
		}
	}
	slices.SortFunc(out, func(a, b document.Document) int {
		if n := b.LastModified.Compare(a.LastModified); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
