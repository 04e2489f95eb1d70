package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/docqueue/internal/queue"
	"github.com/phrazzld/docqueue/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

// setStatusManyScript sets the status of every listed document whose status
// is neither excluded nor already the target, and returns how many changed.
//
// KEYS[1] ids sorted set, KEYS[2] document key prefix
// ARGV[1] new status, ARGV[2..] excluded statuses
var setStatusManyScript = goredis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
local status = ARGV[1]
local excluded = {}
for i = 2, #ARGV do
	excluded[ARGV[i]] = true
end
local changed = 0
for _, id in ipairs(ids) do
	local key = KEYS[2] .. id
	local current = redis.call('HGET', key, 'status') or ''
	if not excluded[current] and current ~= status then
		redis.call('HSET', key, 'status', status)
		changed = changed + 1
	end
end
return changed
`)

// updateScript applies an update to an existing document hash and does
// nothing when the hash is missing. Returns 1 when applied.
//
// KEYS[1] document key
// ARGV[1] number of field/value pairs n, ARGV[2..2n+1] pairs, then fields to delete
var updateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
local n = tonumber(ARGV[1])
if n > 0 then
	redis.call('HSET', KEYS[1], unpack(ARGV, 2, 1 + 2 * n))
end
if #ARGV > 1 + 2 * n then
	redis.call('HDEL', KEYS[1], unpack(ARGV, 2 + 2 * n, #ARGV))
end
return 1
`)

// Collection stores task documents as Redis hashes.
type Collection struct {
	client goredis.UniversalClient
	keys   keys
}

var _ queue.Collection = (*Collection)(nil)

// InsertOne assigns doc.ID from the collection counter and stores doc.
// The uuid is reserved first, so a duplicate never overwrites a document.
func (c *Collection) InsertOne(ctx context.Context, doc *queue.Document) error {
	if doc == nil || doc.UUID == "" || doc.Key == "" {
		return store.NewStoreError("task", "insert", "uuid and key are required", store.ErrInvalidEntity)
	}

	fields, err := encodeDocument(doc)
	if err != nil {
		return store.NewStoreError("task", "insert", "invalid document", errors.Join(store.ErrInvalidEntity, err))
	}

	id, err := c.client.Incr(ctx, c.keys.seq()).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate task id: %w", err)
	}

	reserved, err := c.client.HSetNX(ctx, c.keys.uuids(), doc.UUID, id).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve task uuid: %w", err)
	}
	if !reserved {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, doc.UUID)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, c.keys.doc(id), fields)
		pipe.ZAdd(ctx, c.keys.ids(), goredis.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		c.client.HDel(context.WithoutCancel(ctx), c.keys.uuids(), doc.UUID)
		return fmt.Errorf("%w: insert task: %w", store.ErrTransactionFailed, err)
	}

	doc.ID = id
	return nil
}

// UpdateOne applies u to the document with the given id. Unknown ids are ignored.
func (c *Collection) UpdateOne(ctx context.Context, id int64, u queue.Update) error {
	set, del, err := encodeUpdate(u)
	if err != nil {
		return store.NewStoreError("task", "update", "invalid update", errors.Join(store.ErrInvalidEntity, err))
	}
	if len(set) == 0 && len(del) == 0 {
		return nil
	}

	if _, err := updateScript.Run(ctx, c.client, []string{c.keys.doc(id)}, updateArgs(set, del)...).Int64(); err != nil {
		return fmt.Errorf("%w: update task %d: %w", store.ErrUpdateFailed, id, err)
	}
	return nil
}

// Find returns every document whose status is not excluded by f, in id order.
func (c *Collection) Find(ctx context.Context, f queue.Filter) ([]*queue.Document, error) {
	members, err := c.client.ZRange(ctx, c.keys.ids(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(members))
	cmds := make([]*goredis.MapStringStringCmd, len(members))
	_, err = c.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, m := range members {
			id, err := parseID(m)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", m, err)
			}
			ids[i] = id
			cmds[i] = pipe.HGetAll(ctx, c.keys.doc(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	var docs []*queue.Document
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		doc, err := decodeDocument(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if f.Matches(doc.Status) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// FindOne returns the document with the given uuid.
func (c *Collection) FindOne(ctx context.Context, uuid string) (*queue.Document, error) {
	raw, err := c.client.HGet(ctx, c.keys.uuids(), uuid).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", store.ErrTaskNotFound, uuid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up task %s: %w", uuid, err)
	}

	id, err := parseID(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q for task %s: %w", raw, uuid, err)
	}

	fields, err := c.client.HGetAll(ctx, c.keys.doc(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load task %d: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrTaskNotFound, uuid)
	}
	return decodeDocument(id, fields)
}

// SetStatusMany atomically sets status on every matching document.
func (c *Collection) SetStatusMany(ctx context.Context, f queue.Filter, status queue.Status) (int64, error) {
	args := make([]any, 0, len(f.ExcludeStatuses)+1)
	args = append(args, string(status))
	for _, s := range f.StatusStrings() {
		args = append(args, s)
	}

	n, err := setStatusManyScript.Run(ctx, c.client,
		[]string{c.keys.ids(), c.keys.docPrefix()}, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to set status %q: %w", status, err)
	}
	return n, nil
}

