package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/phrazzld/docqueue/internal/queue"
	"github.com/phrazzld/docqueue/internal/store"
)

// Database holds named in-memory collections.
type Database struct {
	mu          sync.Mutex
	collections map[string]*Collection
}

var _ queue.Database = (*Database)(nil)

// NewDatabase creates an empty Database.
func NewDatabase() *Database {
	return &Database{
		collections: make(map[string]*Collection),
	}
}

// Collection returns the collection with the given name, creating it on first use.
func (d *Database) Collection(name string) queue.Collection {
	return d.collection(name)
}

// TaskCollection is Collection with the concrete type, for tests that seed documents.
func (d *Database) TaskCollection(name string) *Collection {
	return d.collection(name)
}

func (d *Database) collection(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[name]
	if !ok {
		c = NewCollection()
		d.collections[name] = c
	}
	return c
}

// Collection is a concurrency-safe in-memory queue.Collection. Documents are
// copied on the way in and out, so callers never share state with the store.
type Collection struct {
	mu     sync.RWMutex
	nextID int64
	docs   map[int64]*queue.Document
	byUUID map[string]int64
}

var _ queue.Collection = (*Collection)(nil)

// NewCollection creates an empty Collection.
func NewCollection() *Collection {
	return &Collection{
		docs:   make(map[int64]*queue.Document),
		byUUID: make(map[string]int64),
	}
}

// InsertOne stores a copy of doc and assigns doc.ID.
func (c *Collection) InsertOne(ctx context.Context, doc *queue.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(doc.UUID) == "" || strings.TrimSpace(doc.Key) == "" {
		return store.NewStoreError("task", "insert", "uuid and key are required", store.ErrInvalidEntity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byUUID[doc.UUID]; exists {
		return fmt.Errorf("%w: task uuid %s", store.ErrDuplicate, doc.UUID)
	}

	c.nextID++
	doc.ID = c.nextID

	c.docs[doc.ID] = doc.Clone()
	c.byUUID[doc.UUID] = doc.ID
	return nil
}

// UpdateOne applies u to the document with the given ID. Unknown IDs are ignored.
func (c *Collection) UpdateOne(ctx context.Context, id int64, u queue.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[id]
	if !ok {
		return nil
	}
	u.ApplyTo(doc)
	return nil
}

// Find returns copies of all matching documents in ascending ID order.
func (c *Collection) Find(ctx context.Context, f queue.Filter) ([]*queue.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*queue.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		if f.Matches(doc.Status) {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindOne returns a copy of the document with the given uuid.
func (c *Collection) FindOne(ctx context.Context, uuid string) (*queue.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byUUID[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: uuid %s", store.ErrTaskNotFound, uuid)
	}
	return c.docs[id].Clone(), nil
}

// SetStatusMany sets status on all matching documents that do not already have it.
func (c *Collection) SetStatusMany(ctx context.Context, f queue.Filter, status queue.Status) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var modified int64
	for _, doc := range c.docs {
		if f.Matches(doc.Status) && doc.Status != status {
			doc.Status = status
			modified++
		}
	}
	return modified, nil
}

// Put stores a copy of doc as is, keeping its ID when set. It is meant for
// seeding pre-existing documents in tests.
func (c *Collection) Put(doc *queue.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if doc.ID == 0 {
		c.nextID++
		doc.ID = c.nextID
	} else if doc.ID > c.nextID {
		c.nextID = doc.ID
	}
	c.docs[doc.ID] = doc.Clone()
	c.byUUID[doc.UUID] = doc.ID
}

// Get returns a copy of the document with the given ID, or nil.
func (c *Collection) Get(id int64) *queue.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs[id].Clone()
}

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
