package contenthash

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCacheSize = 4096
	DefaultCacheTTL  = 30 * time.Minute
)

// Stat is the identity of a file version. Any change to the file changes at
// least one field, so a stale digest is never served.
type Stat struct {
	Path       string
	Size       int64
	ModTime    time.Time
	ChangeTime time.Time
}

type cacheKey struct {
	path  string
	size  int64
	mtime int64
	ctime int64
}

// Cache memoizes file digests for a long running process.
type Cache struct {
	lru  *expirable.LRU[cacheKey, string]
	hash func(path string) (string, error)
}

func NewCache(size int, ttl time.Duration) *Cache {
	return NewCacheFunc(size, ttl, Hash)
}

// NewCacheFunc memoizes hash instead of Hash.
func NewCacheFunc(size int, ttl time.Duration, hash func(path string) (string, error)) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		lru:  expirable.NewLRU[cacheKey, string](size, nil, ttl),
		hash: hash,
	}
}

func (c *Cache) Hash(st Stat) (string, error) {
	key := cacheKey{
		path:  st.Path,
		size:  st.Size,
		mtime: st.ModTime.UnixNano(),
		ctime: st.ChangeTime.UnixNano(),
	}
	if sum, ok := c.lru.Get(key); ok {
		return sum, nil
	}

	sum, err := c.hash(st.Path)
	if err != nil {
		return "", err
	}
	c.lru.Add(key, sum)
	return sum, nil
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

func (c *Cache) Purge() {
	c.lru.Purge()
}
