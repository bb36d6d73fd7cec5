package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	identityPrefix = "identity:"
	totalsPrefix   = "totals:"
)

// ReferenceCache is a read-through cache in front of a ReferenceSource.
// Only NPIs missing from the cache reach the source. NPIs the source does
// not know are cached as absent too.
type ReferenceCache struct {
	source domain.ReferenceSource
	cache  domain.Cache
	ttl    time.Duration
}

// NewReferenceCache wraps source with c. A zero ttl defaults to one hour.
func NewReferenceCache(source domain.ReferenceSource, c domain.Cache, ttl time.Duration) *ReferenceCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ReferenceCache{source: source, cache: c, ttl: ttl}
}

// BatchLookupIdentity resolves registry identity for npis.
func (r *ReferenceCache) BatchLookupIdentity(ctx context.Context, npis []string) (map[string]domain.Identity, error) {
	return readThrough(ctx, r, identityPrefix, npis, r.source.BatchLookupIdentity)
}

// BatchLookupTotals resolves all-time billing totals for npis.
func (r *ReferenceCache) BatchLookupTotals(ctx context.Context, npis []string) (map[string]domain.Totals, error) {
	return readThrough(ctx, r, totalsPrefix, npis, r.source.BatchLookupTotals)
}

func readThrough[T any](
	ctx context.Context,
	r *ReferenceCache,
	prefix string,
	npis []string,
	load func(context.Context, []string) (map[string]T, error),
) (map[string]T, error) {
	out := make(map[string]T, len(npis))
	var misses []string
	seen := make(map[string]struct{}, len(npis))

	for _, npi := range npis {
		if _, dup := seen[npi]; dup {
			continue
		}
		seen[npi] = struct{}{}

		raw, err := r.cache.Get(ctx, prefix+npi)
		if err != nil {
			slog.Warn("reference cache read failed", "key", prefix+npi, "error", err)
		}
		if raw == nil {
			misses = append(misses, npi)
			continue
		}

		var v *T
		if err := json.Unmarshal(raw, &v); err != nil {
			misses = append(misses, npi)
			continue
		}
		if v != nil {
			out[npi] = *v
		}
	}

	if len(misses) == 0 {
		return out, nil
	}

	loaded, err := load(ctx, misses)
	for _, npi := range misses {
		v, ok := loaded[npi]
		var payload []byte
		switch {
		case ok:
			out[npi] = v
			payload, _ = json.Marshal(v)
		case err != nil:
			// a failed chunk leaves its NPIs uncached
			continue
		default:
			payload = []byte("null")
		}
		if setErr := r.cache.Set(ctx, prefix+npi, payload, r.ttl); setErr != nil {
			slog.Warn("reference cache write failed", "key", prefix+npi, "error", setErr)
		}
	}
	return out, err
}

var _ domain.ReferenceSource = (*ReferenceCache)(nil)
