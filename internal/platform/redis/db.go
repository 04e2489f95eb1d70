package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phrazzld/docqueue/internal/queue"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every key.
const DefaultPrefix = "docqueue"

// Open connects to url and verifies the connection with a ping.
func Open(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Database hands out collections stored under one key prefix.
type Database struct {
	client goredis.UniversalClient
	prefix string

	mu          sync.Mutex
	collections map[string]*Collection
}

var _ queue.Database = (*Database)(nil)

// NewDatabase uses DefaultPrefix when prefix is empty.
func NewDatabase(client goredis.UniversalClient, prefix string) *Database {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Database{
		client:      client,
		prefix:      prefix,
		collections: make(map[string]*Collection),
	}
}

// Collection returns the collection for name.
func (d *Database) Collection(name string) queue.Collection {
	return d.TaskCollection(name)
}

// TaskCollection is Collection with the concrete type.
func (d *Database) TaskCollection(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[name]
	if !ok {
		c = &Collection{client: d.client, keys: newKeys(d.prefix, name)}
		d.collections[name] = c
	}
	return c
}
