package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/okian/skillsync/pkg/logger"
)

const sqliteMemoryPath = ":memory:"

// SQLiteStore keeps every collection in one table of JSON documents and
// compiles query filters to json_extract expressions.
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := newOptions(opts...)

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == sqliteMemoryPath {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, documentsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}

	o.log.Info(ctx, "sqlite store opened", logger.String("path", path))
	return &SQLiteStore{db: db, log: o.log}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, collection string, doc Document) (string, error) {
	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	data, err := encodeWithID(doc, id)
	if err != nil {
		return "", err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?) ON CONFLICT(collection, id) DO NOTHING`,
		collection, id, string(data),
	)
	if err != nil {
		return "", fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", fmt.Errorf("%w: %s/%s", ErrAlreadyExists, collection, id)
	}
	return id, nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	return getDocument(ctx, s.db, collection, id)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q rowQuerier, collection, id string) (Document, error) {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", collection, id, err)
	}
	return decodeDocument([]byte(data))
}

func (s *SQLiteStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	stmt, args, err := compileQuery(collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc, err := decodeDocument([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

// compileQuery builds the SELECT for q. Field names are validated before
// they reach the statement and are bound as JSON paths.
func compileQuery(collection string, q Query) (string, []any, error) {
	if err := q.validate(); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	args := []any{collection}
	b.WriteString(`SELECT data FROM documents WHERE collection = ?`)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, ` AND json_extract(data, ?) %s ?`, sqlOp(f.Op))
		args = append(args, "$."+f.Field, sqlValue(f.Value))
	}
	b.WriteString(` ORDER BY `)
	if q.OrderBy != "" {
		b.WriteString(`json_extract(data, ?)`)
		if q.Desc {
			b.WriteString(` DESC`)
		}
		b.WriteString(`, `)
		args = append(args, "$."+q.OrderBy)
	}
	b.WriteString(`rowid`)
	if q.Desc {
		b.WriteString(` DESC`)
	}
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}

func sqlOp(op Op) string {
	if op == OpEq {
		return "="
	}
	return string(op)
}

// sqlValue maps booleans to the integers json_extract yields for JSON true/false.
func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, partial Document, merge bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	next := Document{}
	if merge {
		cur, err := getDocument(ctx, tx, collection, id)
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
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE collection = ? AND id = ?`,
		string(data), collection, id,
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
