package store

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
)

// VectorMatch is a single nearest-neighbour hit.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// IndexStats reports the vector index's size, used by the Embedding
// Uploader to assign monotonic ids starting at the current total.
type IndexStats struct {
	TotalVectorCount int
}

// VectorIndex is the extended gateway contract: upsert, query,
// describe_index_stats, fetch by id, paginated list of all ids, and delete.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]VectorMatch, error)
	DescribeIndexStats(ctx context.Context) (IndexStats, error)
	Fetch(ctx context.Context, ids []string) (map[string]map[string]string, error)
	List(ctx context.Context, pageSize int) (<-chan []string, error)
	Delete(ctx context.Context, ids []string) error
	DeleteAll(ctx context.Context) error
	Dimension() int
	Close() error
}

// payloadIDField stores the caller-supplied id in the point payload, since
// Qdrant point ids must themselves be UUIDs or unsigned integers.
const payloadIDField = "_original_id"

type qdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrantIndex dials a Qdrant collection over gRPC, creating it if absent.
// dsn accepts an optional api_key query parameter:
// "http://host:6334?api_key=...". Default gRPC port is 6334.
func NewQdrantIndex(dsn, collection string, dimensions int, metric string) (VectorIndex, error) {
	if collection == "" {
		return nil, fmt.Errorf("vectorindex: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: invalid port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create qdrant client: %w", err)
	}
	qi := &qdrantIndex{client: client, collection: collection, dimension: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}
	if err := qi.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("vectorindex: ensure collection: %w", err)
	}
	return qi, nil
}

func (q *qdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return fmt.Errorf("vectorindex: dimensions must be > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *qdrantIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	uid := pointUUID(id)
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	if uid != id {
		payload[payloadIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uid),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (q *qdrantIndex) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]VectorMatch, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	var qf *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		qf = &qdrant.Filter{Must: must}
	}
	limit := uint64(topK)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]VectorMatch, 0, len(hits))
	for _, hit := range hits {
		uid := hit.Id.GetUuid()
		if uid == "" {
			uid = hit.Id.String()
		}
		md := make(map[string]string)
		originalID := ""
		if hit.Payload != nil {
			for k, v := range hit.Payload {
				if k == payloadIDField {
					originalID = v.GetStringValue()
					continue
				}
				md[k] = v.GetStringValue()
			}
		}
		id := originalID
		if id == "" {
			id = uid
		}
		out = append(out, VectorMatch{ID: id, Score: float64(hit.Score), Metadata: md})
	}
	return out, nil
}

func (q *qdrantIndex) DescribeIndexStats(ctx context.Context) (IndexStats, error) {
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return IndexStats{}, err
	}
	return IndexStats{TotalVectorCount: int(info.GetPointsCount())}, nil
}

func (q *qdrantIndex) Fetch(ctx context.Context, ids []string) (map[string]map[string]string, error) {
	uids := make([]*qdrant.PointId, len(ids))
	origByUID := make(map[string]string, len(ids))
	for i, id := range ids {
		uid := pointUUID(id)
		uids[i] = qdrant.NewIDUUID(uid)
		origByUID[uid] = id
	}
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            uids,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(points))
	for _, p := range points {
		uid := p.Id.GetUuid()
		id := origByUID[uid]
		if id == "" {
			id = uid
		}
		md := make(map[string]string)
		for k, v := range p.Payload {
			if k == payloadIDField {
				continue
			}
			md[k] = v.GetStringValue()
		}
		out[id] = md
	}
	return out, nil
}

// List pages through every point id in the collection using Qdrant's scroll
// API, emitting batches of up to pageSize original ids on the channel.
func (q *qdrantIndex) List(ctx context.Context, pageSize int) (<-chan []string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	ch := make(chan []string)
	go func() {
		defer close(ch)
		var offset *qdrant.PointId
		limit := uint32(pageSize)
		for {
			resp, err := q.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
				CollectionName: q.collection,
				Limit:          &limit,
				Offset:         offset,
				WithPayload:    qdrant.NewWithPayload(true),
			})
			if err != nil {
				return
			}
			points := resp.GetResult()
			if len(points) == 0 {
				return
			}
			batch := make([]string, 0, len(points))
			for _, p := range points {
				id := p.Id.GetUuid()
				if p.Payload != nil {
					if orig, ok := p.Payload[payloadIDField]; ok {
						id = orig.GetStringValue()
					}
				}
				batch = append(batch, id)
			}
			select {
			case ch <- batch:
			case <-ctx.Done():
				return
			}
			if len(points) < pageSize {
				return
			}
			offset = points[len(points)-1].Id
		}
	}()
	return ch, nil
}

func (q *qdrantIndex) Delete(ctx context.Context, ids []string) error {
	pts := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pts[i] = qdrant.NewIDUUID(pointUUID(id))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pts...),
	})
	return err
}

func (q *qdrantIndex) DeleteAll(ctx context.Context) error {
	return q.client.DeleteCollection(ctx, q.collection)
}

func (q *qdrantIndex) Dimension() int { return q.dimension }
func (q *qdrantIndex) Close() error   { return q.client.Close() }

// --- Postgres/pgvector fallback implementation --------------------------

type pgVectorIndex struct {
	pool       *pgxpool.Pool
	dimensions int
	metric     string
}

// NewPostgresVectorIndex is the local/dev fallback vector index backed by
// pgvector, used when no Qdrant endpoint is configured.
func NewPostgresVectorIndex(pool *pgxpool.Pool, dimensions int, metric string) VectorIndex {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	_, _ = pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS embeddings (
  id TEXT PRIMARY KEY,
  vec %s,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
)`, vecType))
	return &pgVectorIndex{pool: pool, dimensions: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%g", x))
	}
	b.WriteByte(']')
	return b.String()
}

func (p *pgVectorIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO embeddings(id, vec, metadata) VALUES($1, $2::vector, $3)
ON CONFLICT (id) DO UPDATE SET vec=EXCLUDED.vec, metadata=EXCLUDED.metadata
`, id, toVectorLiteral(vector), metadata)
	return err
}

func (p *pgVectorIndex) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]VectorMatch, error) {
	if topK <= 0 {
		topK = 10
	}
	op := "<=>"
	scoreExpr := "1 - (vec <=> $1::vector)"
	switch p.metric {
	case "l2", "euclidean":
		op = "<->"
		scoreExpr = "-(vec <-> $1::vector)"
	case "ip", "dot":
		op = "<#>"
		scoreExpr = "-(vec <#> $1::vector)"
	}
	args := []any{toVectorLiteral(vector), topK}
	where := ""
	if len(filter) > 0 {
		where = "WHERE metadata @> $3"
		args = []any{toVectorLiteral(vector), topK, filter}
	}
	q := fmt.Sprintf(`SELECT id, %s AS score, metadata FROM embeddings %s ORDER BY vec %s $1::vector LIMIT $2`, scoreExpr, where, op)
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]VectorMatch, 0, topK)
	for rows.Next() {
		var r VectorMatch
		var md map[string]string
		if err := rows.Scan(&r.ID, &r.Score, &md); err != nil {
			return nil, err
		}
		r.Metadata = md
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *pgVectorIndex) DescribeIndexStats(ctx context.Context) (IndexStats, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM embeddings`).Scan(&n)
	return IndexStats{TotalVectorCount: n}, err
}

func (p *pgVectorIndex) Fetch(ctx context.Context, ids []string) (map[string]map[string]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, metadata FROM embeddings WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]map[string]string, len(ids))
	for rows.Next() {
		var id string
		var md map[string]string
		if err := rows.Scan(&id, &md); err != nil {
			return nil, err
		}
		out[id] = md
	}
	return out, rows.Err()
}

func (p *pgVectorIndex) List(ctx context.Context, pageSize int) (<-chan []string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	ch := make(chan []string)
	go func() {
		defer close(ch)
		rows, err := p.pool.Query(ctx, `SELECT id FROM embeddings ORDER BY id`)
		if err != nil {
			return
		}
		defer rows.Close()
		batch := make([]string, 0, pageSize)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return
			}
			batch = append(batch, id)
			if len(batch) == pageSize {
				select {
				case ch <- batch:
				case <-ctx.Done():
					return
				}
				batch = make([]string, 0, pageSize)
			}
		}
		if len(batch) > 0 {
			ch <- batch
		}
	}()
	return ch, nil
}

func (p *pgVectorIndex) Delete(ctx context.Context, ids []string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM embeddings WHERE id = ANY($1)`, ids)
	return err
}

func (p *pgVectorIndex) DeleteAll(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `TRUNCATE embeddings`)
	return err
}

func (p *pgVectorIndex) Dimension() int { return p.dimensions }
func (p *pgVectorIndex) Close() error   { return nil }

// --- In-memory implementation -------------------------------------------

type memoryVectorIndex struct {
	mu      sync.RWMutex
	vectors map[string]memVec
	order   []string
}

type memVec struct {
	v        []float32
	metadata map[string]string
}

// NewMemoryVectorIndex is an in-process brute-force cosine index, used in
// tests and as the "memory" configuration backend.
func NewMemoryVectorIndex() VectorIndex {
	return &memoryVectorIndex{vectors: make(map[string]memVec)}
}

func (m *memoryVectorIndex) Upsert(_ context.Context, id string, vector []float32, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]float32, len(vector))
	copy(cp, vector)
	if _, exists := m.vectors[id]; !exists {
		m.order = append(m.order, id)
	}
	m.vectors[id] = memVec{v: cp, metadata: cloneStrMap(metadata)}
	return nil
}

func cloneStrMap(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func (m *memoryVectorIndex) Query(_ context.Context, vector []float32, topK int, filter map[string]string) ([]VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 {
		topK = 10
	}
	qnorm := vecNorm(vector)
	matches := make([]VectorMatch, 0, len(m.vectors))
	for id, v := range m.vectors {
		if !matchesStrFilter(v.metadata, filter) {
			continue
		}
		matches = append(matches, VectorMatch{ID: id, Score: cosine(vector, v.v, qnorm), Metadata: cloneStrMap(v.metadata)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func matchesStrFilter(md, filter map[string]string) bool {
	for k, v := range filter {
		if md[k] != v {
			return false
		}
	}
	return true
}

func vecNorm(a []float32) float64 {
	var s float64
	for _, x := range a {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = vecNorm(a)
	}
	bnorm := vecNorm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}

func (m *memoryVectorIndex) DescribeIndexStats(_ context.Context) (IndexStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return IndexStats{TotalVectorCount: len(m.vectors)}, nil
}

func (m *memoryVectorIndex) Fetch(_ context.Context, ids []string) (map[string]map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]string, len(ids))
	for _, id := range ids {
		if v, ok := m.vectors[id]; ok {
			out[id] = cloneStrMap(v.metadata)
		}
	}
	return out, nil
}

func (m *memoryVectorIndex) List(ctx context.Context, pageSize int) (<-chan []string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()
	ch := make(chan []string)
	go func() {
		defer close(ch)
		for start := 0; start < len(ids); start += pageSize {
			end := start + pageSize
			if end > len(ids) {
				end = len(ids)
			}
			select {
			case ch <- ids[start:end]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (m *memoryVectorIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.vectors, id)
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := m.vectors[id]; ok {
			kept = append(kept, id)
		}
	}
	m.order = kept
	return nil
}

func (m *memoryVectorIndex) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = make(map[string]memVec)
	m.order = nil
	return nil
}

func (m *memoryVectorIndex) Dimension() int { return 0 }
func (m *memoryVectorIndex) Close() error   { return nil }
