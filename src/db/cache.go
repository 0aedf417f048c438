package db

import (
	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// assumed average encoded record size, used to size the admission counters
const avgRecordSize = 512

// recordCache holds encoded records by key. A nil cache is valid and empty.
type recordCache struct {
	c *ristretto.Cache[string, []byte]
}

func newRecordCache(maxCost int64) (*recordCache, error) {
	if maxCost <= 0 {
		return nil, nil
	}
	counters := max(maxCost/avgRecordSize*10, 1000)
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating record cache")
	}
	return &recordCache{c: c}, nil
}

func (rc *recordCache) get(key []byte) ([]byte, bool) {
	if rc == nil {
		return nil, false
	}
	return rc.c.Get(string(key))
}

// add offers a value read from the store. It may be dropped.
func (rc *recordCache) add(key, val []byte) {
	if rc == nil {
		return
	}
	rc.c.Set(string(key), val, int64(len(val)))
}

// set stores a freshly written value and waits for it to be applied. The
// key is dropped first so a pending add of an older value cannot win.
func (rc *recordCache) set(key, val []byte) {
	if rc == nil {
		return
	}
	rc.c.Del(string(key))
	if !rc.c.Set(string(key), val, int64(len(val))) {
		rc.c.Del(string(key))
	}
	rc.c.Wait()
}

func (rc *recordCache) del(key []byte) {
	if rc == nil {
		return
	}
	rc.c.Del(string(key))
	rc.c.Wait()
}

func (rc *recordCache) close() {
	if rc == nil {
		return
	}
	rc.c.Close()
}