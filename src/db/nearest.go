package db

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"math"
	"slices"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/pkg/errors"

	"placestore/src/types"
)

// EarthRadiusKm is the radius of the earth in a spherical earth model.
const EarthRadiusKm = 6371

const initialSearchKm = 1

// Distance is the great-circle distance between a and b in kilometers.
// s2.LatLng.Distance uses the haversine formula.
func Distance(a, b types.Location) float64 {
	return latLng(a).Distance(latLng(b)).Radians() * EarthRadiusKm
}

func latLng(l types.Location) s2.LatLng {
	return s2.LatLngFromDegrees(l.Lat(), l.Lon())
}

func sortByDistance(res []types.Neighbor) {
	slices.SortFunc(res, func(a, b types.Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// cellFinder keeps a geo index next to the records. Every place has one key
// <prefix>geo!<leaf cell id><place id>, so any S2 cell maps to one key range.
type cellFinder struct {
	s *PlaceStore
}

func (f *cellFinder) prefix() []byte {
	return []byte(f.s.opts.Prefix + "geo!")
}

func (f *cellFinder) cellKey(cell s2.CellID) []byte {
	return binary.BigEndian.AppendUint64(f.prefix(), uint64(cell))
}

func (f *cellFinder) key(id int64, loc types.Location) []byte {
	k := f.cellKey(s2.CellIDFromLatLng(latLng(loc)))
	return binary.BigEndian.AppendUint64(k, uint64(id))
}

func (f *cellFinder) IndexOps(id int64, prev, next *types.Location) []types.Op {
	var ops []types.Op
	if prev != nil {
		ops = append(ops, types.Delete(f.key(id, *prev)))
	}
	if next != nil {
		val, _ := json.Marshal(next)
		ops = append(ops, types.Put(f.key(id, *next), val))
	}
	return ops
}

func (f *cellFinder) Sync(int64, *types.Location) error {
	return nil
}

// Nearest grows a cap around q until it holds limit places or covers the
// whole sphere.
func (f *cellFinder) Nearest(q types.Location, limit int) ([]types.Neighbor, error) {
	kv, err := f.s.db()
	if err != nil {
		return nil, err
	}
	center := s2.PointFromLatLng(latLng(q))
	coverer := &s2.RegionCoverer{MinLevel: 0, MaxLevel: s2.MaxLevel, MaxCells: 8}
	radius := s1.Angle(initialSearchKm / float64(EarthRadiusKm))

	for {
		if radius > math.Pi {
			radius = math.Pi
		}
		found := map[int64]types.Neighbor{}
		for _, cell := range coverer.Covering(s2.CapFromCenterAngle(center, radius)) {
			lo, hi := f.cellKey(cell.RangeMin()), f.cellKey(cell.RangeMax()+1)
			err := kv.Iterate(lo, hi, func(k, v []byte) error {
				var loc types.Location
				if err := json.Unmarshal(v, &loc); err != nil {
					return errors.Wrapf(err, "decoding geo entry %x", k)
				}
				id := int64(binary.BigEndian.Uint64(k[len(k)-8:]))
				found[id] = types.Neighbor{ID: id, Location: loc, Distance: Distance(q, loc)}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}

		radiusKm := radius.Radians() * EarthRadiusKm
		inside := 0
		for _, n := range found {
			if n.Distance <= radiusKm {
				inside++
			}
		}
		if inside >= limit || radius >= math.Pi {
			res := make([]types.Neighbor, 0, len(found))
			for _, n := range found {
				res = append(res, n)
			}
			sortByDistance(res)
			if len(res) > limit {
				res = res[:limit]
			}
			return res, nil
		}
		radius *= 2
	}
}

func (f *cellFinder) Rebuild(points []types.Neighbor) error {
	kv, err := f.s.db()
	if err != nil {
		return err
	}
	prefix := f.prefix()
	var ops []types.Op
	err = kv.Iterate(prefix, prefixEnd(prefix), func(k, _ []byte) error {
		ops = append(ops, types.Delete(k))
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range points {
		ops = append(ops, f.IndexOps(p.ID, nil, &p.Location)...)
	}
	return kv.Batch(ops)
}

// scanFinder computes the distance to every live place. It returns all of
// them, nearest first, and ignores limit.
type scanFinder struct {
	s *PlaceStore
}

func (f *scanFinder) IndexOps(int64, *types.Location, *types.Location) []types.Op {
	return nil
}

func (f *scanFinder) Sync(int64, *types.Location) error {
	return nil
}

func (f *scanFinder) Nearest(q types.Location, _ int) ([]types.Neighbor, error) {
	kv, err := f.s.db()
	if err != nil {
		return nil, err
	}
	ids, err := f.s.loadIds(kv)
	if err != nil {
		return nil, err
	}
	places, err := f.s.getAll(kv, ids)
	if err != nil {
		return nil, err
	}
	res := make([]types.Neighbor, len(places))
	for i, p := range places {
		res[i] = types.Neighbor{ID: p.ID, Location: p.Location, Distance: Distance(q, p.Location)}
	}
	sortByDistance(res)
	return res, nil
}
