package workflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"comfyd/internal/common/fsutil"
)

const (
	fetchTimeout = 30 * time.Second
	// assetCacheTTL bounds how long fetched bytes are reused for the
	// same url+destination pair. Repeated invocations of the same
	// workflow hit the cache; distinct nodes never share an entry.
	assetCacheTTL = time.Minute
	// maxCachedAsset keeps oversized downloads out of the cache.
	maxCachedAsset = 8 << 20
)

// Fetcher downloads remote assets for the binder. Outbound requests are
// rate-limited; bodies are cached briefly so immediate retries of the
// same job skip the network round-trip.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cache   *cache.Cache
}

// NewFetcher returns a fetcher with the default politeness limits.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: fetchTimeout},
		limiter: rate.NewLimiter(rate.Limit(4), 8),
		cache:   cache.New(assetCacheTTL, 2*assetCacheTTL),
	}
}

// FetchTo downloads url into dest, creating parent directories as
// needed. The destination file is written even on a cache hit, so every
// caller ends up with its own on-disk copy.
func (f *Fetcher) FetchTo(ctx context.Context, url, dest string) error {
	key := url + "\x00" + dest
	b, err := f.bytes(ctx, key, url)
	if err != nil {
		return fetchError{url: url, err: err}
	}
	if err := fsutil.EnsureDir(filepath.Dir(dest)); err != nil {
		return fmt.Errorf("ensure asset dir: %w", err)
	}
	if err := os.WriteFile(dest, b, 0o644); err != nil {
		return fmt.Errorf("write asset %s: %w", dest, err)
	}
	return nil
}

func (f *Fetcher) bytes(ctx context.Context, key, url string) ([]byte, error) {
	if v, ok := f.cache.Get(key); ok {
		return v.([]byte), nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(b) <= maxCachedAsset {
		f.cache.Set(key, b, cache.DefaultExpiration)
	}
	return b, nil
}
