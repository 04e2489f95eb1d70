package queue

import "context"

// Collection is a set of task documents in a backing store.
// Implementations must be safe for concurrent use and apply each
// single-document operation atomically.
type Collection interface {
	// InsertOne persists a new document and assigns doc.ID.
	InsertOne(ctx context.Context, doc *Document) error

	// UpdateOne applies u to the document with the given ID.
	UpdateOne(ctx context.Context, id int64, u Update) error

	// Find returns all documents matching f in ascending ID order.
	Find(ctx context.Context, f Filter) ([]*Document, error)

	// FindOne returns the document with the given uuid, or an error
	// wrapping store.ErrNotFound.
	FindOne(ctx context.Context, uuid string) (*Document, error)

	// SetStatusMany sets the status of every document matching f and
	// returns how many documents actually changed.
	SetStatusMany(ctx context.Context, f Filter, status Status) (int64, error)
}

// Database hands out collections by name.
type Database interface {
	Collection(name string) Collection
}

// DatabaseAccessor resolves the database for one operation.
type DatabaseAccessor func(ctx context.Context) (Database, error)

// StaticDatabase returns an accessor that always resolves to db.
func StaticDatabase(db Database) DatabaseAccessor {
	return func(context.Context) (Database, error) {
		return db, nil
	}
}
