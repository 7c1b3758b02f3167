package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Doc is a single document: JSON-compatible field values keyed by field name.
// time.Time values and the ServerTimestamp sentinel are accepted on writes and
// stored as RFC3339Nano strings.
type Doc map[string]interface{}

var ErrNotFound = errors.New("docstore: document not found")

type serverTimestamp struct{}

// ServerTimestamp is a write sentinel replaced by the backend's clock at the
// moment the write is applied.
var ServerTimestamp = serverTimestamp{}

// Store is a real-time document store: collections of documents addressable by
// id, with field-level last-writer-wins partial updates and push subscriptions.
// There are no transactions across documents; concurrent writers to the same
// field race and the last write wins.
type Store interface {
	// Get returns a copy of one document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Doc, error)
	// List returns a copy of every document in a collection, keyed by id.
	List(ctx context.Context, collection string) (map[string]Doc, error)
	// Update applies a partial field update to an existing document.
	// Fails with ErrNotFound if the document does not exist.
	Update(ctx context.Context, collection, id string, fields Doc) error
	// CreateIfAbsent creates the document only when no document with the
	// given id exists. Returns true when this call created it. Safe under
	// concurrent invocation: exactly one caller creates, the rest no-op.
	CreateIfAbsent(ctx context.Context, collection, id string, doc Doc) (bool, error)
	// Subscribe delivers a full-collection snapshot after every change to
	// any document in the collection (and one initial snapshot). The stream
	// never terminates on its own; the returned cancel func releases it.
	Subscribe(ctx context.Context, collection string) (<-chan map[string]Doc, func())
	// SubscribeDoc is Subscribe scoped to a single document id. A snapshot
	// is delivered even while the document does not exist yet (as nil).
	SubscribeDoc(ctx context.Context, collection, id string) (<-chan Doc, func())
	Close() error
}

// Time reads a timestamp field written via time.Time or ServerTimestamp.
// Returns the zero time when the field is absent, null, or unparseable.
func (d Doc) Time(key string) time.Time {
	s, ok := d[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d Doc) String(key string) string {
	s, _ := d[key].(string)
	return s
}

func (d Doc) Float(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

func (d Doc) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// resolve rewrites sentinel and time values into their stored string form.
// now is the backend's write timestamp.
func resolve(v interface{}, now time.Time) interface{} {
	switch t := v.(type) {
	case serverTimestamp:
		return now.UTC().Format(time.RFC3339Nano)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	case Doc:
		return resolveDoc(t, now)
	case map[string]interface{}:
		return resolveDoc(t, now)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = resolve(e, now)
		}
		return out
	default:
		return v
	}
}

func resolveDoc(d Doc, now time.Time) Doc {
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = resolve(v, now)
	}
	return out
}

// clone deep-copies a document through its JSON form so snapshots handed to
// subscribers never alias stored state.
func clone(d Doc) Doc {
	if d == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return Doc{}
	}
	var out Doc
	if err := json.Unmarshal(raw, &out); err != nil {
		return Doc{}
	}
	return out
}

func cloneAll(m map[string]Doc) map[string]Doc {
	out := make(map[string]Doc, len(m))
	for id, d := range m {
		out[id] = clone(d)
	}
	return out
}
