// Package store implements the three storage gateways the core pipeline is
// built against: a Mongo-like Document Store, an (id, vector, metadata)
// Vector Index, and a byte-blob Key/Value Cache. Each has a Postgres/Qdrant/
// Redis-backed implementation and an in-memory implementation used by
// tests and local development.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by FindOne when no document matches the filter.
var ErrNotFound = errors.New("store: document not found")

// Document is a JSON-shaped record. Callers typically marshal a typed struct
// into this via ToDocument/FromDocument.
type Document map[string]any

// DocumentStore is the Mongo-like per-collection contract:
// find_one/insert_one/update_one/delete_many/count_documents/create_index.
type DocumentStore interface {
	FindOne(ctx context.Context, collection string, filter Document) (Document, error)
	// FindMany returns every document matching filter, up to limit (0 means
	// unbounded). Used by the Retrieval Orchestrator's metadata snapshot
	// scans, which is the one place the pipeline needs more than a single
	// matching document back.
	FindMany(ctx context.Context, collection string, filter Document, limit int) ([]Document, error)
	InsertOne(ctx context.Context, collection string, doc Document) error
	UpdateOne(ctx context.Context, collection string, filter, set Document, upsert bool) error
	DeleteMany(ctx context.Context, collection string, filter Document) (int64, error)
	CountDocuments(ctx context.Context, collection string, filter Document) (int64, error)
	CreateIndex(ctx context.Context, collection, field string, unique bool) error
	Close()
}

// ToDocument marshals v (a struct with json tags) into a Document.
func ToDocument(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// FromDocument unmarshals a Document back into a typed struct pointer.
func FromDocument(d Document, v any) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// --- Postgres-backed implementation -----------------------------------

// pgDocumentStore stores each logical "collection" as rows of a single
// JSONB-typed table, bootstrapped on first use: no external migration
// tool is assumed, CREATE TABLE IF NOT EXISTS runs at construction.
type pgDocumentStore struct {
	pool *pgxpool.Pool
	mu   sync.Mutex
	have map[string]bool
}

// NewPostgresDocumentStore wraps an existing pool. Tables are created lazily
// per collection on first use, named "doc_<collection>".
func NewPostgresDocumentStore(pool *pgxpool.Pool) DocumentStore {
	return &pgDocumentStore{pool: pool, have: make(map[string]bool)}
}

func tableName(collection string) string {
	return "doc_" + sanitizeIdent(collection)
}

func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (p *pgDocumentStore) ensureTable(ctx context.Context, collection string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.have[collection] {
		return nil
	}
	tbl := tableName(collection)
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id BIGSERIAL PRIMARY KEY,
  body JSONB NOT NULL
)`, tbl))
	if err != nil {
		return fmt.Errorf("ensure table %s: %w", tbl, err)
	}
	p.have[collection] = true
	return nil
}

func (p *pgDocumentStore) FindOne(ctx context.Context, collection string, filter Document) (Document, error) {
	if err := p.ensureTable(ctx, collection); err != nil {
		return nil, err
	}
	tbl := tableName(collection)
	row := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT body FROM %s WHERE body @> $1 LIMIT 1`, tbl), filterJSON(filter))
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func (p *pgDocumentStore) FindMany(ctx context.Context, collection string, filter Document, limit int) ([]Document, error) {
	if err := p.ensureTable(ctx, collection); err != nil {
		return nil, err
	}
	tbl := tableName(collection)
	query := fmt.Sprintf(`SELECT body FROM %s WHERE body @> $1`, tbl)
	args := []any{filterJSON(filter)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d Document
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *pgDocumentStore) InsertOne(ctx context.Context, collection string, doc Document) error {
	if err := p.ensureTable(ctx, collection); err != nil {
		return err
	}
	tbl := tableName(collection)
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s(body) VALUES($1)`, tbl), filterJSON(doc))
	return err
}

func (p *pgDocumentStore) UpdateOne(ctx context.Context, collection string, filter, set Document, upsert bool) error {
	if err := p.ensureTable(ctx, collection); err != nil {
		return err
	}
	tbl := tableName(collection)
	ct, err := p.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET body = body || $2::jsonb WHERE body @> $1`, tbl),
		filterJSON(filter), filterJSON(set))
	if err != nil {
		return err
	}
	if ct.RowsAffected() > 0 || !upsert {
		return nil
	}
	merged := Document{}
	for k, v := range filter {
		merged[k] = v
	}
	for k, v := range set {
		merged[k] = v
	}
	return p.InsertOne(ctx, collection, merged)
}

func (p *pgDocumentStore) DeleteMany(ctx context.Context, collection string, filter Document) (int64, error) {
	if err := p.ensureTable(ctx, collection); err != nil {
		return 0, err
	}
	tbl := tableName(collection)
	ct, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE body @> $1`, tbl), filterJSON(filter))
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (p *pgDocumentStore) CountDocuments(ctx context.Context, collection string, filter Document) (int64, error) {
	if err := p.ensureTable(ctx, collection); err != nil {
		return 0, err
	}
	tbl := tableName(collection)
	var n int64
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE body @> $1`, tbl), filterJSON(filter)).Scan(&n)
	return n, err
}

func (p *pgDocumentStore) CreateIndex(ctx context.Context, collection, field string, unique bool) error {
	if err := p.ensureTable(ctx, collection); err != nil {
		return err
	}
	tbl := tableName(collection)
	idx := fmt.Sprintf("%s_%s_idx", tbl, sanitizeIdent(field))
	uniq := ""
	if unique {
		uniq = "UNIQUE"
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(
		`CREATE %s INDEX IF NOT EXISTS %s ON %s ((body->>'%s'))`, uniq, idx, tbl, field))
	return err
}

func (p *pgDocumentStore) Close() { p.pool.Close() }

func filterJSON(d Document) []byte {
	if d == nil {
		d = Document{}
	}
	b, _ := json.Marshal(d)
	return b
}

// --- In-memory implementation -------------------------------------------

type memoryDocumentStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
	uniqueIdx   map[string]map[string]bool // collection -> field -> is-unique
}

// NewMemoryDocumentStore returns a DocumentStore backed by process memory,
// suitable for tests and for the "memory" (or empty) configuration backend.
func NewMemoryDocumentStore() DocumentStore {
	return &memoryDocumentStore{
		collections: make(map[string][]Document),
		uniqueIdx:   make(map[string]map[string]bool),
	}
}

func matchesFilter(doc, filter Document) bool {
	for k, v := range filter {
		if doc[k] != v {
			return false
		}
	}
	return true
}

func cloneDoc(d Document) Document {
	cp := make(Document, len(d))
	for k, v := range d {
		cp[k] = v
	}
	return cp
}

func (m *memoryDocumentStore) FindOne(_ context.Context, collection string, filter Document) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.collections[collection] {
		if matchesFilter(d, filter) {
			return cloneDoc(d), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryDocumentStore) FindMany(_ context.Context, collection string, filter Document, limit int) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for _, d := range m.collections[collection] {
		if matchesFilter(d, filter) {
			out = append(out, cloneDoc(d))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memoryDocumentStore) InsertOne(_ context.Context, collection string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUnique(collection, doc); err != nil {
		return err
	}
	m.collections[collection] = append(m.collections[collection], cloneDoc(doc))
	return nil
}

func (m *memoryDocumentStore) checkUnique(collection string, doc Document) error {
	fields := m.uniqueIdx[collection]
	for field, unique := range fields {
		if !unique {
			continue
		}
		v, ok := doc[field]
		if !ok {
			continue
		}
		for _, existing := range m.collections[collection] {
			if existing[field] == v {
				return fmt.Errorf("store: duplicate value for unique field %q", field)
			}
		}
	}
	return nil
}

func (m *memoryDocumentStore) UpdateOne(_ context.Context, collection string, filter, set Document, upsert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collections[collection]
	for i, d := range docs {
		if matchesFilter(d, filter) {
			for k, v := range set {
				docs[i][k] = v
			}
			return nil
		}
	}
	if !upsert {
		return nil
	}
	merged := cloneDoc(filter)
	for k, v := range set {
		merged[k] = v
	}
	if err := m.checkUnique(collection, merged); err != nil {
		return err
	}
	m.collections[collection] = append(docs, merged)
	return nil
}

func (m *memoryDocumentStore) DeleteMany(_ context.Context, collection string, filter Document) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collections[collection]
	kept := docs[:0]
	var removed int64
	for _, d := range docs {
		if matchesFilter(d, filter) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	m.collections[collection] = kept
	return removed, nil
}

func (m *memoryDocumentStore) CountDocuments(_ context.Context, collection string, filter Document) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, d := range m.collections[collection] {
		if matchesFilter(d, filter) {
			n++
		}
	}
	return n, nil
}

func (m *memoryDocumentStore) CreateIndex(_ context.Context, collection, field string, unique bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uniqueIdx[collection] == nil {
		m.uniqueIdx[collection] = make(map[string]bool)
	}
	m.uniqueIdx[collection][field] = unique
	return nil
}

func (m *memoryDocumentStore) Close() {}
