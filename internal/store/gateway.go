package store

import (
	"context"
	"fmt"
	"time"

	"campusrag/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Gateway is the storage gateway: a single struct owning the handles to the
// document store, vector index, and cache. NewGateway constructs all three
// up front (handles are not created lazily), and the Gateway holds no
// content-API client.
// Components depend on the Gateway rather than reaching for a concrete
// backend, so swapping postgres for memory (tests, local dev) touches only
// config.
type Gateway struct {
	Docs    DocumentStore
	Vectors VectorIndex
	Cache   Cache

	pgPool *pgxpool.Pool
}

// NewGateway constructs the three storage backends from cfg, selecting
// memory/postgres/qdrant/redis per backend name. Multiple "postgres"-backed
// components share a single connection pool.
func NewGateway(ctx context.Context, cfg config.Config) (*Gateway, error) {
	gw := &Gateway{}

	docDSN := cfg.DocStore.DSN
	vecDSN := cfg.Vector.DSN

	switch cfg.DocStore.Backend {
	case "", "memory":
		gw.Docs = NewMemoryDocumentStore()
	case "postgres", "pg":
		pool, err := gw.sharedPool(ctx, docDSN)
		if err != nil {
			return nil, fmt.Errorf("storage gateway: connect postgres (docstore): %w", err)
		}
		gw.Docs = NewPostgresDocumentStore(pool)
	default:
		return nil, fmt.Errorf("storage gateway: unsupported docstore backend %q", cfg.DocStore.Backend)
	}

	switch cfg.Vector.Backend {
	case "", "memory":
		gw.Vectors = NewMemoryVectorIndex()
	case "postgres", "pgvector", "pg":
		pool, err := gw.sharedPool(ctx, vecDSN)
		if err != nil {
			return nil, fmt.Errorf("storage gateway: connect postgres (vector): %w", err)
		}
		gw.Vectors = NewPostgresVectorIndex(pool, cfg.Vector.Dimensions, cfg.Vector.Metric)
	case "qdrant":
		idx, err := NewQdrantIndex(vecDSN, cfg.Vector.Collection, cfg.Vector.Dimensions, cfg.Vector.Metric)
		if err != nil {
			return nil, fmt.Errorf("storage gateway: connect qdrant: %w", err)
		}
		gw.Vectors = idx
	default:
		return nil, fmt.Errorf("storage gateway: unsupported vector backend %q", cfg.Vector.Backend)
	}

	switch cfg.Cache.Backend {
	case "", "memory":
		gw.Cache = NewMemoryCache()
	case "redis":
		c, err := NewRedisCache(cfg.Cache.DSN)
		if err != nil {
			return nil, fmt.Errorf("storage gateway: connect redis: %w", err)
		}
		gw.Cache = c
	default:
		return nil, fmt.Errorf("storage gateway: unsupported cache backend %q", cfg.Cache.Backend)
	}

	return gw, nil
}

// sharedPool lazily opens the Postgres pool on first use and reuses it for
// any other component configured with the same backend.
func (gw *Gateway) sharedPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if gw.pgPool != nil {
		return gw.pgPool, nil
	}
	pool, err := openPgPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	gw.pgPool = pool
	return pool, nil
}

func openPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 8
	pcfg.MinConns = 0
	pcfg.MaxConnLifetime = time.Hour
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Close releases all backend handles held by the gateway.
func (gw *Gateway) Close() {
	if gw.Docs != nil {
		gw.Docs.Close()
	}
	if gw.Vectors != nil {
		gw.Vectors.Close()
	}
	if gw.pgPool != nil {
		gw.pgPool.Close()
	}
}
