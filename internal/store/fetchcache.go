package store

import (
	"context"
	"log/slog"
	"time"

	"promptproof/pkg/provenance"
)

// CachingFetcher decorates a ProofFetcher so every successfully fetched
// payload lands in the proof cache. Fetch semantics are unchanged; a cache
// write failure is logged and swallowed because retrieval must not depend
// on local disk health.
type CachingFetcher struct {
	inner provenance.ProofFetcher
	store *Store
	log   *slog.Logger
}

// NewCachingFetcher wraps inner with write-through caching into st.
func NewCachingFetcher(inner provenance.ProofFetcher, st *Store, log *slog.Logger) *CachingFetcher {
	if log == nil {
		log = slog.Default()
	}
	return &CachingFetcher{inner: inner, store: st, log: log}
}

// Fetch delegates to the wrapped fetcher and records the served payload.
func (c *CachingFetcher) Fetch(ctx context.Context, txID string) (*provenance.FetchResult, error) {
	res, err := c.inner.Fetch(ctx, txID)
	if err != nil {
		return nil, err
	}

	if len(res.Payload) > 0 {
		cacheErr := c.store.CacheProof(&CachedProof{
			TxID:      txID,
			Payload:   res.Payload,
			SourceURL: res.URL,
			FetchedAt: time.Now().UnixNano(),
		})
		if cacheErr != nil {
			c.log.Warn("proof cache write failed", "tx", txID, "error", cacheErr)
		}
	}
	return res, nil
}
