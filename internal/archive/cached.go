package archive

import "github.com/bluele/gcache"

// Cached keeps recently loaded responses in an LRU so repeated reduction
// passes over the same trips hit memory instead of disk.
type Cached struct {
	*Archive
	cache gcache.Cache
}

func NewCached(a *Archive, size int) *Cached {
	c := &Cached{Archive: a}
	c.cache = gcache.New(size).
		LRU().
		LoaderFunc(func(key interface{}) (interface{}, error) {
			return a.Load(key.(int))
		}).
		Build()
	return c
}

func (c *Cached) Store(id int, raw []byte) error {
	c.cache.Remove(id)
	return c.Archive.Store(id, raw)
}

func (c *Cached) Load(id int) ([]byte, error) {
	v, err := c.cache.Get(id)
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Stats returns cache hit and miss counts.
func (c *Cached) Stats() (hits, misses uint64) {
	return c.cache.HitCount(), c.cache.MissCount()
}
