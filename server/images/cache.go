package images

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache keeps a small stack of prefetched images in front of a Provider.
// Next pops a cached image and tops the stack back up asynchronously; on a
// cold cache it fetches directly so the caller never waits on a full
// refill. At most one refill runs at a time.
type Cache struct {
	provider Provider
	target   int

	mu       sync.Mutex
	items    []Image
	refiling atomic.Bool
}

func NewCache(provider Provider, target int) *Cache {
	return &Cache{provider: provider, target: target}
}

// Fill fetches images until the cache holds n, stopping early on error.
// Used at boot; refills during operation go through Next.
func (c *Cache) Fill(ctx context.Context, n int) error {
	for c.Size() < n {
		img, err := c.provider.Fetch(ctx)
		if err != nil {
			return err
		}
		c.push(img)
	}
	return nil
}

// Next returns one image. Cached images are served newest-first; an empty
// cache falls through to the provider.
func (c *Cache) Next(ctx context.Context) (Image, error) {
	if img, ok := c.pop(); ok {
		c.refillAsync()
		return img, nil
	}
	c.refillAsync()
	return c.provider.Fetch(ctx)
}

// Size reports the current cache depth.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) push(img Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, img)
}

func (c *Cache) pop() (Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return Image{}, false
	}
	img := c.items[len(c.items)-1]
	c.items = c.items[:len(c.items)-1]
	return img, true
}

// refillAsync tops the cache back up to target in the background. The
// atomic guard keeps a burst of Next calls from stacking refills.
func (c *Cache) refillAsync() {
	if c.Size() >= c.target {
		return
	}
	if !c.refiling.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.refiling.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		for c.Size() < c.target {
			img, err := c.provider.Fetch(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("image cache refill stopped")
				return
			}
			c.push(img)
		}
	}()
}
