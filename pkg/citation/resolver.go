package citation

import (
	"context"
	"time"

	"insight-assistant-be/pkg/assistant"

	"github.com/patrickmn/go-cache"
)

// CachedResolver looks file names up through the assistant client and keeps
// successful answers in memory. Failures are not cached.
type CachedResolver struct {
	client assistant.Client
	cache  *cache.Cache
}

func NewCachedResolver(client assistant.Client, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedResolver{
		client: client,
		cache:  cache.New(ttl, 2*ttl),
	}
}

func (r *CachedResolver) Filename(ctx context.Context, fileID string) (string, error) {
	if name, found := r.cache.Get(fileID); found {
		return name.(string), nil
	}
	info, err := r.client.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	r.cache.Set(fileID, info.Filename, cache.DefaultExpiration)
	return info.Filename, nil
}

// Remember seeds the cache, e.g. right after a dataset was ingested.
func (r *CachedResolver) Remember(fileID, filename string) {
	r.cache.Set(fileID, filename, cache.DefaultExpiration)
}
