package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryRecord struct {
	seq  uint64
	data []byte
}

// MemoryStore keeps documents as encoded JSON in maps, so callers never
// share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]memoryRecord
	seq         uint64
	closed      bool
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]memoryRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	data, err := encodeWithID(doc, id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	coll := s.collections[collection]
	if coll == nil {
		coll = make(map[string]memoryRecord)
		s.collections[collection] = coll
	}
	if _, ok := coll[id]; ok {
		return "", fmt.Errorf("%w: %s/%s", ErrAlreadyExists, collection, id)
	}
	s.seq++
	coll[id] = memoryRecord{seq: s.seq, data: data}
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return decodeDocument(rec.data)
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	recs := make([]memoryRecord, 0, len(s.collections[collection]))
	for _, rec := range s.collections[collection] {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	type row struct {
		seq uint64
		doc Document
	}
	rows := make([]row, 0, len(recs))
	for _, rec := range recs {
		doc, err := decodeDocument(rec.data)
		if err != nil {
			return nil, err
		}
		if matches(doc, q.Filters) {
			rows = append(rows, row{seq: rec.seq, doc: doc})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if q.OrderBy != "" {
			a, _ := lookup(rows[i].doc, q.OrderBy)
			b, _ := lookup(rows[j].doc, q.OrderBy)
			if c := compareValues(a, b); c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		if q.Desc {
			return rows[i].seq > rows[j].seq
		}
		return rows[i].seq < rows[j].seq
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]Document, len(rows))
	for i, r := range rows {
		out[i] = r.doc
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, partial Document, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	rec, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	next := Document{}
	if merge {
		cur, err := decodeDocument(rec.data)
		if err != nil {
			return err
		}
		next = cur
	}
	for k, v := range partial {
		next[k] = v
	}
	data, err := encodeWithID(next, id)
	if err != nil {
		return err
	}
	rec.data = data
	s.collections[collection][id] = rec
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	delete(s.collections[collection], id)
	return nil
}

// Close releases the documents. Later calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = nil
	return nil
}

func encodeWithID(doc Document, id string) ([]byte, error) {
	cp := make(Document, len(doc)+1)
	for k, v := range doc {
		cp[k] = v
	}
	cp["id"] = id
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func decodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := lookup(doc, f.Field)
		if !ok {
			return false
		}
		c, same := compareFilter(v, f.Value)
		if !same {
			return f.Op == OpNe
		}
		switch f.Op {
		case OpEq:
			ok = c == 0
		case OpNe:
			ok = c != 0
		case OpLt:
			ok = c < 0
		case OpLte:
			ok = c <= 0
		case OpGt:
			ok = c > 0
		case OpGte:
			ok = c >= 0
		}
		if !ok {
			return false
		}
	}
	return true
}

// compareFilter compares a stored value with a filter value of the same kind.
func compareFilter(stored, want any) (int, bool) {
	switch w := want.(type) {
	case int:
		return compareFilter(stored, float64(w))
	case int64:
		return compareFilter(stored, float64(w))
	}
	if kind(stored) != kind(want) {
		return 0, false
	}
	return compareValues(stored, want), true
}

// kind ranks JSON types for ordering: null < bool < number < string < other.
func kind(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func compareValues(a, b any) int {
	ka, kb := kind(a), kind(b)
	if ka != kb {
		return ka - kb
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return 0
}
