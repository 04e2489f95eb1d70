package redis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/phrazzld/docqueue/internal/queue"
)

// Hash fields of a stored document.
const (
	fieldUUID      = "uuid"
	fieldKey       = "key"
	fieldData      = "data"
	fieldStatus    = "status"
	fieldErrors    = "errors"
	fieldCreatedAt = "createdAt"
	fieldCreatedBy = "createdBy"
	fieldUpdatedAt = "updatedAt"
	fieldUpdatedBy = "updatedBy"
)

// encodeDocument returns the hash fields of doc. Empty optional fields are omitted.
func encodeDocument(doc *queue.Document) (map[string]any, error) {
	fields := map[string]any{
		fieldUUID:      doc.UUID,
		fieldKey:       doc.Key,
		fieldStatus:    string(doc.Status),
		fieldCreatedAt: formatTime(doc.CreatedAt),
	}

	if doc.Data != nil {
		data, err := json.Marshal(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		fields[fieldData] = string(data)
	}

	taskErrors := doc.Errors
	if taskErrors == nil {
		taskErrors = []queue.ErrorRecord{}
	}
	errorsJSON, err := json.Marshal(taskErrors)
	if err != nil {
		return nil, fmt.Errorf("errors: %w", err)
	}
	fields[fieldErrors] = string(errorsJSON)

	if doc.CreatedBy != "" {
		fields[fieldCreatedBy] = doc.CreatedBy
	}
	if doc.UpdatedAt != nil {
		fields[fieldUpdatedAt] = formatTime(*doc.UpdatedAt)
	}
	if doc.UpdatedBy != "" {
		fields[fieldUpdatedBy] = doc.UpdatedBy
	}
	return fields, nil
}

// encodeUpdate splits u into fields to write and fields to delete.
func encodeUpdate(u queue.Update) (map[string]any, []string, error) {
	set := make(map[string]any)
	var del []string

	if v, ok := u.Status.Value(); ok {
		set[fieldStatus] = string(v)
	} else if u.Status.IsCleared() {
		del = append(del, fieldStatus)
	}

	if v, ok := u.Data.Value(); ok && v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("data: %w", err)
		}
		set[fieldData] = string(data)
	} else if ok || u.Data.IsCleared() {
		del = append(del, fieldData)
	}

	if v, ok := u.Errors.Value(); ok {
		if v == nil {
			v = []queue.ErrorRecord{}
		}
		errorsJSON, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("errors: %w", err)
		}
		set[fieldErrors] = string(errorsJSON)
	} else if u.Errors.IsCleared() {
		del = append(del, fieldErrors)
	}

	if v, ok := u.UpdatedAt.Value(); ok {
		set[fieldUpdatedAt] = formatTime(v)
	} else if u.UpdatedAt.IsCleared() {
		del = append(del, fieldUpdatedAt)
	}

	if v, ok := u.UpdatedBy.Value(); ok {
		set[fieldUpdatedBy] = v
	} else if u.UpdatedBy.IsCleared() {
		del = append(del, fieldUpdatedBy)
	}

	return set, del, nil
}

// decodeDocument rebuilds a document from its id and hash fields.
func decodeDocument(id int64, fields map[string]string) (*queue.Document, error) {
	doc := &queue.Document{
		ID:        id,
		UUID:      fields[fieldUUID],
		Key:       fields[fieldKey],
		Status:    queue.Status(fields[fieldStatus]),
		CreatedBy: fields[fieldCreatedBy],
		UpdatedBy: fields[fieldUpdatedBy],
	}

	if raw, ok := fields[fieldData]; ok {
		if err := json.Unmarshal([]byte(raw), &doc.Data); err != nil {
			return nil, fmt.Errorf("failed to decode data of task %d: %w", id, err)
		}
	}
	if raw, ok := fields[fieldErrors]; ok {
		if err := json.Unmarshal([]byte(raw), &doc.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors of task %d: %w", id, err)
		}
	}

	createdAt, err := parseTime(fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt of task %d: %w", id, err)
	}
	doc.CreatedAt = createdAt

	if raw, ok := fields[fieldUpdatedAt]; ok {
		updatedAt, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid updatedAt of task %d: %w", id, err)
		}
		doc.UpdatedAt = &updatedAt
	}

	return doc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// updateArgs flattens an encoded update into updateScript arguments. Set
// fields are sorted so the argument list is stable.
func updateArgs(set map[string]any, del []string) []any {
	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	args := make([]any, 0, 1+2*len(set)+len(del))
	args = append(args, len(set))
	for _, f := range fields {
		args = append(args, f, set[f])
	}
	for _, f := range del {
		args = append(args, f)
	}
	return args
}
