package db

import (
	"encoding/json"
	"slices"
	"strconv"

	"github.com/pkg/errors"

	"placestore/src/types"
)

// idIndex is the list of live place ids, most recently created first.
type idIndex []int64

func (ix idIndex) contains(id int64) bool {
	return slices.Contains(ix, id)
}

func (ix idIndex) add(id int64) idIndex {
	if ix.contains(id) {
		return ix
	}
	return append(idIndex{id}, ix...)
}

func (ix idIndex) remove(id int64) idIndex {
	i := slices.Index(ix, id)
	if i < 0 {
		return ix
	}
	return slices.Delete(slices.Clone(ix), i, i+1)
}

// page returns ix[offset:offset+limit], clamped to the index bounds.
func (ix idIndex) page(offset, limit int) idIndex {
	if offset < 0 || offset >= len(ix) || limit <= 0 {
		return idIndex{}
	}
	end := min(offset+limit, len(ix))
	return ix[offset:end]
}

func (ix idIndex) max() int64 {
	if len(ix) == 0 {
		return 0
	}
	return slices.Max(ix)
}

// loadIds reads the id index. A store without one has an empty index.
func (s *PlaceStore) loadIds(kv types.KV) (idIndex, error) {
	val, err := kv.Get(s.idsKey())
	if errors.Is(err, types.ErrKeyNotFound) {
		return idIndex{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading id index")
	}
	var ids idIndex
	if err := json.Unmarshal(val, &ids); err != nil {
		return nil, errors.Wrap(err, "decoding id index")
	}
	if ids == nil {
		ids = idIndex{}
	}
	return ids, nil
}

// allocateID returns the id following the last allocated one. Callers hold
// the write lock and persist the returned id under seqKey in the same batch
// as the new record.
func (s *PlaceStore) allocateID(kv types.KV, ids idIndex) (int64, error) {
	val, err := kv.Get(s.seqKey())
	if errors.Is(err, types.ErrKeyNotFound) {
		return ids.max() + 1, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading id counter")
	}
	last, err := strconv.ParseInt(string(val), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "decoding id counter %q", val)
	}
	return max(last, ids.max()) + 1, nil
}
