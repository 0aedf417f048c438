package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placestore/src/types"
)

var (
	sanFrancisco = types.Location{37.7749, -122.4194}
	losAngeles   = types.Location{34.0522, -118.2437}
	sydney       = types.Location{-33.8688, 151.2093}
	paloAlto     = types.Location{37.4419, -122.1430}
)

func TestDistance(t *testing.T) {
	assert.InDelta(t, 559.1, Distance(sanFrancisco, losAngeles), 1)
	assert.InDelta(t, Distance(losAngeles, sanFrancisco), Distance(sanFrancisco, losAngeles), 1e-9)
	assert.Zero(t, Distance(mountainView, mountainView))
	assert.InDelta(t, 20015, Distance(types.Location{0, 0}, types.Location{0, 180}), 1)
}

func neighborIDs(res []types.Neighbor) []int64 {
	ids := make([]int64, len(res))
	for i, n := range res {
		ids[i] = n.ID
	}
	return ids
}

func seed(t *testing.T, s *PlaceStore, locs ...types.Location) []int64 {
	t.Helper()
	ids := make([]int64, len(locs))
	for i, loc := range locs {
		p, err := s.Create(payload("place", loc))
		require.NoError(t, err)
		ids[i] = p.ID
	}
	return ids
}

func TestNearestStrategies(t *testing.T) {
	for _, proximity := range []string{ProximityCells, ProximityScan} {
		t.Run(proximity, func(t *testing.T) {
			s := newTestStore(t, Options{Proximity: proximity})
			ids := seed(t, s, mountainView, sydney, losAngeles, paloAlto)

			res, err := s.Nearest(mountainView)
			require.NoError(t, err)
			require.Len(t, res, 4)
			assert.Equal(t, []int64{ids[0], ids[3], ids[2], ids[1]}, neighborIDs(res))
			assert.InDelta(t, 0, res[0].Distance, 1e-6)
			assert.Equal(t, mountainView, res[0].Location)
			assert.InDelta(t, Distance(mountainView, sydney), res[3].Distance, 1e-6)
		})
	}
}

func TestNearestEmptyStore(t *testing.T) {
	for _, proximity := range []string{ProximityCells, ProximityScan} {
		s := newTestStore(t, Options{Proximity: proximity})
		res, err := s.Nearest(mountainView)
		require.NoError(t, err)
		assert.Empty(t, res)
	}
}

func TestNearestCellsLimit(t *testing.T) {
	s := newTestStore(t, Options{Limit: 2})
	ids := seed(t, s, sydney, paloAlto, losAngeles, mountainView)

	res, err := s.Nearest(sanFrancisco)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[3]}, neighborIDs(res))
}

func TestNearestScanIgnoresLimit(t *testing.T) {
	s := newTestStore(t, Options{Limit: 2, Proximity: ProximityScan})
	seed(t, s, sydney, paloAlto, losAngeles, mountainView)

	res, err := s.Nearest(sanFrancisco)
	require.NoError(t, err)
	assert.Len(t, res, 4)
}

func TestNearestFollowsUpdatesAndDeletes(t *testing.T) {
	s := newTestStore(t, Options{})
	ids := seed(t, s, mountainView, losAngeles)

	// move the Mountain View place to Sydney
	_, err := s.Update(payload("moved", sydney), ids[0])
	require.NoError(t, err)

	res, err := s.Nearest(sydney)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, ids[0], res[0].ID)
	assert.InDelta(t, 0, res[0].Distance, 1e-6)

	require.NoError(t, s.Delete(ids[0]))
	res, err = s.Nearest(sydney)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1]}, neighborIDs(res))
}

func TestReindexCells(t *testing.T) {
	s := newTestStore(t, Options{})
	ids := seed(t, s, mountainView, losAngeles)

	f := s.finder.(*cellFinder)
	kv, err := s.db()
	require.NoError(t, err)

	// drop one entry and add a stale one
	require.NoError(t, kv.Batch(append(
		f.IndexOps(ids[0], &mountainView, nil),
		f.IndexOps(99, nil, &sydney)...,
	)))
	res, err := s.Nearest(mountainView)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], 99}, neighborIDs(res))

	require.NoError(t, s.Reindex())

	res, err = s.Nearest(mountainView)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0], ids[1]}, neighborIDs(res))
}

func TestReindexScanIsNoop(t *testing.T) {
	s := newTestStore(t, Options{Proximity: ProximityScan})
	seed(t, s, mountainView)
	require.NoError(t, s.Reindex())
}
