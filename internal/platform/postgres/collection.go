package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/docqueue/internal/queue"
	"github.com/phrazzld/docqueue/internal/store"
)

const documentColumns = `id, uuid, key, data, status, errors, created_at, created_by, updated_at, updated_by`

// Collection stores task documents in one table.
type Collection struct {
	db    DBTX
	name  string
	table string

	ensureMu sync.Mutex
	ensured  bool
}

var _ queue.Collection = (*Collection)(nil)

func newCollection(db DBTX, name string) *Collection {
	return &Collection{
		db:    db,
		name:  name,
		table: pgx.Identifier{name}.Sanitize(),
	}
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// ensure creates the backing table once per Collection.
// A failed attempt is retried on the next call.
func (c *Collection) ensure(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()

	if c.ensured {
		return nil
	}
	if _, err := c.db.Exec(ctx, `SELECT docqueue_ensure_task_collection($1)`, c.name); err != nil {
		if IsMissingSchema(err) {
			return fmt.Errorf("task collection %q is not available, run migrations first: %w", c.name, err)
		}
		return fmt.Errorf("failed to ensure task collection %q: %w", c.name, MapError(err))
	}
	c.ensured = true
	return nil
}

// InsertOne inserts doc and sets doc.ID from the generated key.
func (c *Collection) InsertOne(ctx context.Context, doc *queue.Document) error {
	if doc == nil || doc.UUID == "" || doc.Key == "" {
		return store.NewStoreError("task", "insert", "uuid and key are required", store.ErrInvalidEntity)
	}
	if err := c.ensure(ctx); err != nil {
		return err
	}

	data, err := marshalNullable(doc.Data)
	if err != nil {
		return store.NewStoreError("task", "insert", "invalid data", errors.Join(store.ErrInvalidEntity, err))
	}
	taskErrors := doc.Errors
	if taskErrors == nil {
		taskErrors = []queue.ErrorRecord{}
	}
	errorsJSON, err := json.Marshal(taskErrors)
	if err != nil {
		return store.NewStoreError("task", "insert", "invalid errors", errors.Join(store.ErrInvalidEntity, err))
	}

	query := `INSERT INTO ` + c.table + ` (uuid, key, data, status, errors, created_at, created_by, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id int64
	err = c.db.QueryRow(ctx, query,
		doc.UUID,
		doc.Key,
		data,
		string(doc.Status),
		errorsJSON,
		doc.CreatedAt,
		nullString(doc.CreatedBy),
		doc.UpdatedAt,
		nullString(doc.UpdatedBy),
	).Scan(&id)
	if err != nil {
		return MapError(err)
	}

	doc.ID = id
	return nil
}

// UpdateOne applies u to the row with the given id. Unknown ids are ignored.
func (c *Collection) UpdateOne(ctx context.Context, id int64, u queue.Update) error {
	query, args, err := buildUpdate(c.table, id, u)
	if err != nil {
		return store.NewStoreError("task", "update", "invalid update", errors.Join(store.ErrInvalidEntity, err))
	}
	if query == "" {
		return nil
	}
	if err := c.ensure(ctx); err != nil {
		return err
	}

	if _, err := c.db.Exec(ctx, query, args...); err != nil {
		return MapError(err)
	}
	return nil
}

// Find returns every document whose status is not excluded by f, oldest first.
func (c *Collection) Find(ctx context.Context, f queue.Filter) ([]*queue.Document, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + documentColumns + ` FROM ` + c.table + `
		WHERE COALESCE(status, '') <> ALL($1)
		ORDER BY id`

	rows, err := c.db.Query(ctx, query, f.StatusStrings())
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var docs []*queue.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return docs, nil
}

// FindOne returns the document with the given uuid.
func (c *Collection) FindOne(ctx context.Context, uuid string) (*queue.Document, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + documentColumns + ` FROM ` + c.table + ` WHERE uuid = $1`

	doc, err := scanDocument(c.db.QueryRow(ctx, query, uuid))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrTaskNotFound, uuid)
		}
		return nil, err
	}
	return doc, nil
}

// SetStatusMany sets status on every row matching f and returns the number of
// rows whose status changed.
func (c *Collection) SetStatusMany(ctx context.Context, f queue.Filter, status queue.Status) (int64, error) {
	if err := c.ensure(ctx); err != nil {
		return 0, err
	}

	query := `UPDATE ` + c.table + ` SET status = $2
		WHERE COALESCE(status, '') <> ALL($1) AND status IS DISTINCT FROM $2`

	tag, err := c.db.Exec(ctx, query, f.StatusStrings(), string(status))
	if err != nil {
		return 0, MapError(err)
	}
	return tag.RowsAffected(), nil
}

// buildUpdate renders u as an UPDATE statement. It returns an empty query
// when u changes nothing.
func buildUpdate(table string, id int64, u queue.Update) (string, []any, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	setNull := func(column string) {
		sets = append(sets, column+" = NULL")
	}

	if v, ok := u.Status.Value(); ok {
		add("status", string(v))
	} else if u.Status.IsCleared() {
		setNull("status")
	}

	if v, ok := u.Data.Value(); ok {
		data, err := marshalNullable(v)
		if err != nil {
			return "", nil, fmt.Errorf("data: %w", err)
		}
		add("data", data)
	} else if u.Data.IsCleared() {
		setNull("data")
	}

	if v, ok := u.Errors.Value(); ok {
		if v == nil {
			v = []queue.ErrorRecord{}
		}
		errorsJSON, err := json.Marshal(v)
		if err != nil {
			return "", nil, fmt.Errorf("errors: %w", err)
		}
		add("errors", errorsJSON)
	} else if u.Errors.IsCleared() {
		setNull("errors")
	}

	if v, ok := u.UpdatedAt.Value(); ok {
		add("updated_at", v)
	} else if u.UpdatedAt.IsCleared() {
		setNull("updated_at")
	}

	if v, ok := u.UpdatedBy.Value(); ok {
		add("updated_by", v)
	} else if u.UpdatedBy.IsCleared() {
		setNull("updated_by")
	}

	if len(sets) == 0 {
		return "", nil, nil
	}

	args = append(args, id)
	query := `UPDATE ` + table + ` SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(len(args))
	return query, args, nil
}

func scanDocument(row pgx.Row) (*queue.Document, error) {
	var (
		doc        queue.Document
		data       []byte
		status     *string
		taskErrors []byte
		createdBy  *string
		updatedAt  *time.Time
		updatedBy  *string
	)

	err := row.Scan(
		&doc.ID,
		&doc.UUID,
		&doc.Key,
		&data,
		&status,
		&taskErrors,
		&doc.CreatedAt,
		&createdBy,
		&updatedAt,
		&updatedBy,
	)
	if err != nil {
		return nil, MapError(err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc.Data); err != nil {
			return nil, fmt.Errorf("failed to decode data of task %d: %w", doc.ID, err)
		}
	}
	if len(taskErrors) > 0 {
		if err := json.Unmarshal(taskErrors, &doc.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors of task %d: %w", doc.ID, err)
		}
	}
	if status != nil {
		doc.Status = queue.Status(*status)
	}
	if createdBy != nil {
		doc.CreatedBy = *createdBy
	}
	if updatedBy != nil {
		doc.UpdatedBy = *updatedBy
	}
	if updatedAt != nil {
		t := updatedAt.UTC()
		doc.UpdatedAt = &t
	}
	doc.CreatedAt = doc.CreatedAt.UTC()

	return &doc, nil
}

// marshalNullable encodes v as JSON, keeping a nil map as SQL NULL.
func marshalNullable(v queue.Data) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
