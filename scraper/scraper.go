package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/metroinfo/metrobot/types"
	cache "github.com/patrickmn/go-cache"
)

// ErrUpstreamUnavailable is returned when the status endpoint cannot be
// reached or answers with a non-success status
var ErrUpstreamUnavailable = errors.New("upstream status endpoint unavailable")

// ErrMalformedResponse is returned when the status document does not follow
// the expected schema
var ErrMalformedResponse = errors.New("malformed upstream status document")

// Source retrieves the current status of the network
type Source interface {
	FetchNetworkStatus(ctx context.Context) (types.Network, error)
}

const latestKey = "network"

// CachedSource wraps a Source, keeping the last successfully fetched network
// status around for consumers that do not need fresh data
type CachedSource struct {
	source Source
	cache  *cache.Cache
}

// NewCachedSource returns a CachedSource that keeps results for ttl
func NewCachedSource(source Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// FetchNetworkStatus always queries the wrapped source and refreshes the cache
// on success
func (s *CachedSource) FetchNetworkStatus(ctx context.Context) (types.Network, error) {
	network, err := s.source.FetchNetworkStatus(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(latestKey, network)
	return network, nil
}

// Latest returns the cached network status, fetching it if the cache expired
func (s *CachedSource) Latest(ctx context.Context) (types.Network, error) {
	if cached, found := s.cache.Get(latestKey); found {
		return cached.(types.Network), nil
	}
	return s.FetchNetworkStatus(ctx)
}
