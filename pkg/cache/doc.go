// Package cache serves flight searches from the structured store.
//
// A search is identified by its cache key, the SHA-256 digest of the
// normalized search parameters (see GenerateKey). Lookup returns the newest
// stored snapshot for a key if it is younger than the requested maximum age
// and rebuilds the provider response shape from the relational rows.
//
// # Basic Usage
//
//	db, err := storage.Open(ctx, "flight_data.db")
//	if err != nil {
//		return err
//	}
//	store := cache.NewStore(db, cache.Config{Metrics: m})
//
//	res := store.Lookup(ctx, params, 24*time.Hour)
//	switch res.Status {
//	case cache.StatusHit:
//		// res.Search.Response is ready to serve
//	case cache.StatusMiss, cache.StatusError:
//		// fetch from the API
//	}
//
// # Freshness
//
// A snapshot is fresh while created_at > now - maxAge. A snapshot exactly
// maxAge old is expired. PruneExpired deletes snapshots with
// created_at <= now - maxAge, so a pruned snapshot was never fresh.
//
// Lookup never fails the caller: storage errors are logged, counted in
// flight_cache_errors_total{operation="lookup"} and reported as
// StatusError, which callers treat like a miss.
//
// # Metrics
//
//   - flight_cache_hits_total
//   - flight_cache_misses_total
//   - flight_cache_errors_total{operation}
//   - flight_cache_pruned_searches_total
package cache
