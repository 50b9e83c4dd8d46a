// Package repository is the persistence port of SkillSync: a small document
// store interface, two adapters and typed repositories on top of it.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

// Collection names.
const (
	CollectionUsers        = "users"
	CollectionTasks        = "tasks"
	CollectionReviews      = "peerReviews"
	CollectionScoreHistory = "scoreHistory"
)

// Document is a JSON object. Numbers read back as float64.
type Document map[string]any

// Op is a filter comparison.
type Op string

// Supported filter operators.
const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Filter restricts a query to documents whose Field compares to Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents of one collection. Filters are ANDed. Limit <= 0
// means no limit. Ties are broken by insertion order, reversed when Desc.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Where returns a copy of q with one more filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// DocumentStore provides read/write access to schemaless documents.
type DocumentStore interface {
	// Create stores doc and returns its id. A non-empty "id" field is used as
	// is; otherwise a new one is generated.
	Create(ctx context.Context, collection string, doc Document) (string, error)

	// Get returns ErrNotFound if no document has the id.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns matching documents in the requested order.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// Update merges partial into the document's top-level fields when merge is
	// true, or replaces the document otherwise. The id is always kept.
	Update(ctx context.Context, collection, id string, partial Document, merge bool) error

	// Delete removes a document. Deleting a missing id returns ErrNotFound.
	Delete(ctx context.Context, collection, id string) error

	Close() error
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// validate rejects field names and operators the adapters cannot compile.
func (q Query) validate() error {
	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidQuery, f.Field)
		}
		switch f.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		default:
			return fmt.Errorf("%w: operator %q", ErrInvalidQuery, f.Op)
		}
		switch f.Value.(type) {
		case string, bool, int, int64, float64:
		default:
			return fmt.Errorf("%w: unsupported value %T for %q", ErrInvalidQuery, f.Value, f.Field)
		}
	}
	if q.OrderBy != "" && !fieldPattern.MatchString(q.OrderBy) {
		return fmt.Errorf("%w: order field %q", ErrInvalidQuery, q.OrderBy)
	}
	return nil
}

// toDocument converts a JSON-tagged struct into a Document.
func toDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// fromDocument fills a JSON-tagged struct from doc.
func fromDocument(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// lookup resolves a dotted path inside doc.
func lookup(doc Document, path string) (any, bool) {
	var cur any = map[string]any(doc)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[path[start:i]]
		if !ok {
			return nil, false
		}
		start = i + 1
	}
	return cur, true
}
