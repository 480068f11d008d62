// Package pulsestore provides an optional Postgres-backed cache for
// fetched ObservedPoint series, keyed by target name and source URL.
// Calibration results are not stored. Grounded verbatim on the teacher's
// pkg/core/store/db.go sync.Once pgxpool pattern, repurposed from SEC
// filing caching to observed-series caching. Callers that never set
// PULSE_DATABASE_URL simply get ErrNotConfigured from Init and fall back
// to an in-memory cache (see MemoryCache).
package pulsestore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sdl/pkg/core/fetcher"
)

var (
	pool *pgxpool.Pool
	once sync.Once
)

// ErrNotConfigured is returned by Init when PULSE_DATABASE_URL is unset.
var ErrNotConfigured = fmt.Errorf("pulsestore: PULSE_DATABASE_URL not set")

// Init initializes the shared connection pool from the PULSE_DATABASE_URL
// environment variable. Safe to call multiple times; only the first call
// does work.
func Init(ctx context.Context) error {
	var err error
	once.Do(func() {
		dsn := os.Getenv("PULSE_DATABASE_URL")
		if dsn == "" {
			err = ErrNotConfigured
			return
		}
		cfg, parseErr := pgxpool.ParseConfig(dsn)
		if parseErr != nil {
			err = fmt.Errorf("pulsestore: parse dsn: %w", parseErr)
			return
		}
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
	})
	return err
}

// Pool returns the shared connection pool, or nil if Init was never
// called or failed.
func Pool() *pgxpool.Pool { return pool }

// Close releases the connection pool.
func Close() {
	if pool != nil {
		pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS pulse_observed_points (
	target     TEXT NOT NULL,
	source_url TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	source     TEXT NOT NULL,
	provisional BOOLEAN NOT NULL DEFAULT false,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (target, source_url, observed_at)
)`

// EnsureSchema creates the backing table if it does not already exist.
func EnsureSchema(ctx context.Context) error {
	if pool == nil {
		return fmt.Errorf("pulsestore: not initialized")
	}
	_, err := pool.Exec(ctx, schema)
	return err
}

// Put upserts an observed series for (target, sourceURL).
func Put(ctx context.Context, target, sourceURL string, points []fetcher.ObservedPoint) error {
	if pool == nil {
		return fmt.Errorf("pulsestore: not initialized")
	}
	for _, p := range points {
		_, err := pool.Exec(ctx,
			`INSERT INTO pulse_observed_points (target, source_url, observed_at, value, source, provisional)
			 VALUES ($1,$2,$3,$4,$5,$6)
			 ON CONFLICT (target, source_url, observed_at) DO UPDATE SET value=$4, source=$5, provisional=$6, fetched_at=now()`,
			target, sourceURL, p.Date, p.Value, p.Source, p.Provisional)
		if err != nil {
			return fmt.Errorf("pulsestore: put %q: %w", target, err)
		}
	}
	return nil
}

// Get returns the cached observed series for (target, sourceURL), oldest
// observation first, limited to rows fetched within maxAge (zero means no
// limit).
func Get(ctx context.Context, target, sourceURL string, maxAge time.Duration) ([]fetcher.ObservedPoint, error) {
	if pool == nil {
		return nil, fmt.Errorf("pulsestore: not initialized")
	}
	var rows []fetcher.ObservedPoint
	query := `SELECT observed_at, value, source, provisional FROM pulse_observed_points WHERE target=$1 AND source_url=$2`
	args := []any{target, sourceURL}
	if maxAge > 0 {
		query += ` AND fetched_at >= $3`
		args = append(args, time.Now().Add(-maxAge))
	}
	query += ` ORDER BY observed_at ASC`
	r, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pulsestore: get %q: %w", target, err)
	}
	defer r.Close()
	for r.Next() {
		var p fetcher.ObservedPoint
		if err := r.Scan(&p.Date, &p.Value, &p.Source, &p.Provisional); err != nil {
			return nil, err
		}
		rows = append(rows, p)
	}
	return rows, r.Err()
}

// DBCache adapts the package-level Postgres pool to orchestrator.Cache,
// binding the Get/Put calls above to ctx for the lifetime of one Pulse run.
// A Get error (including "not initialized") is treated as a cache miss
// rather than surfaced, since a cache is an optimization the fetch path
// must tolerate losing.
type DBCache struct {
	ctx context.Context
}

// NewDBCache returns a Cache backed by the shared pgx pool, scoped to ctx.
func NewDBCache(ctx context.Context) *DBCache { return &DBCache{ctx: ctx} }

func (c *DBCache) Get(target, sourceURL string) ([]fetcher.ObservedPoint, bool) {
	pts, err := Get(c.ctx, target, sourceURL, 0)
	if err != nil || len(pts) == 0 {
		return nil, false
	}
	return pts, true
}

func (c *DBCache) Put(target, sourceURL string, points []fetcher.ObservedPoint) {
	_ = Put(c.ctx, target, sourceURL, points)
}

// MemoryCache is the in-process fallback used when PULSE_DATABASE_URL is
// unset: a simple mutex-guarded map, keyed the same way as the Postgres
// table.
type MemoryCache struct {
	mu    sync.RWMutex
	data  map[string][]fetcher.ObservedPoint
}

// NewMemoryCache builds an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: map[string][]fetcher.ObservedPoint{}}
}

func cacheKey(target, sourceURL string) string { return target + "|" + sourceURL }

// Put stores points for (target, sourceURL), replacing any prior entry.
func (c *MemoryCache) Put(target, sourceURL string, points []fetcher.ObservedPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[cacheKey(target, sourceURL)] = points
}

// Get returns the cached points for (target, sourceURL), if any.
func (c *MemoryCache) Get(target, sourceURL string) ([]fetcher.ObservedPoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.data[cacheKey(target, sourceURL)]
	return p, ok
}
