package db

import (
	"bytes"
	"encoding/json"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"placestore/src/types"
)

const (
	ProximityCells   = "cells"
	ProximityScan    = "scan"
	ProximityElastic = "elastic"

	DefaultPrefix       = "places!"
	DefaultLimit        = 10
	DefaultMaxRating    = 5
	DefaultElasticIndex = "places"

	// concurrent record reads per List call
	listFanout = 8
)

type Options struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// Prefix namespaces every key written by the store.
	Prefix string
	// Limit is the page size of List and the result cap of Nearest.
	Limit     int
	MaxRating int
	// Meta lists the recognised meta keys. Keys missing on a place are stored as false.
	Meta map[string]any

	// Proximity selects the nearest-neighbor strategy: cells, scan or elastic.
	Proximity      string
	ElasticURL     string
	ElasticIndex   string
	ElasticTimeout time.Duration

	// CacheSize is the record cache budget in bytes; 0 disables the cache.
	CacheSize int64

	Logger *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MaxRating <= 0 {
		o.MaxRating = DefaultMaxRating
	}
	if o.Proximity == "" {
		o.Proximity = ProximityCells
	}
	if o.ElasticIndex == "" {
		o.ElasticIndex = DefaultElasticIndex
	}
	if o.ElasticTimeout <= 0 {
		o.ElasticTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// PlaceStore persists places and their ratings in an ordered key-value store.
//
// Mutations are serialized by mu. Reads share it so that the record cache
// never observes a write out of order.
type PlaceStore struct {
	opts   Options
	log    *zap.Logger
	finder types.ProximityFinder
	cache  *recordCache
	now    func() time.Time

	mu sync.RWMutex

	openMu  sync.Mutex
	kv      types.KV
	stopped bool
}

var _ types.DataStore = (*PlaceStore)(nil)

func NewPlaceStore(opts Options) (*PlaceStore, error) {
	opts.setDefaults()
	s := &PlaceStore{
		opts: opts,
		log:  opts.Logger,
		now:  time.Now,
	}

	var err error
	if s.cache, err = newRecordCache(opts.CacheSize); err != nil {
		return nil, err
	}

	switch opts.Proximity {
	case ProximityCells:
		s.finder = &cellFinder{s: s}
	case ProximityScan:
		s.finder = &scanFinder{s: s}
	case ProximityElastic:
		ef, err := NewElasticFinder(opts.ElasticURL, opts.ElasticIndex, opts.ElasticTimeout, s.log)
		if err != nil {
			s.cache.close()
			return nil, err
		}
		s.finder = ef
	default:
		s.cache.close()
		return nil, errors.Errorf("unknown proximity strategy %q", opts.Proximity)
	}
	return s, nil
}

// db returns the open key-value handle, opening it if needed.
func (s *PlaceStore) db() (types.KV, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if s.kv != nil && !s.kv.IsClosed() {
		return s.kv, nil
	}
	kv, err := OpenBadger(s.opts.Path, s.opts.InMemory, s.log)
	if err != nil {
		return nil, err
	}
	if s.stopped {
		if s.cache, err = newRecordCache(s.opts.CacheSize); err != nil {
			_ = kv.Close()
			return nil, err
		}
		if ef, ok := s.finder.(*ElasticFinder); ok {
			ef.Start()
		}
		s.stopped = false
	}
	s.kv = kv
	return kv, nil
}

// Close releases the KV, the record cache and the elastic client. The next
// call on the store opens all of them again.
func (s *PlaceStore) Close() error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if !s.stopped {
		if ef, ok := s.finder.(*ElasticFinder); ok {
			ef.Stop()
		}
		s.cache.close()
		s.cache = nil
		s.stopped = true
	}
	if s.kv == nil || s.kv.IsClosed() {
		return nil
	}
	return s.kv.Close()
}

func (s *PlaceStore) Limit() int {
	return s.opts.Limit
}

func (s *PlaceStore) idsKey() []byte {
	return []byte(s.opts.Prefix + "ids")
}

func (s *PlaceStore) seqKey() []byte {
	return []byte(s.opts.Prefix + "seq")
}

func (s *PlaceStore) recordKey(id int64) []byte {
	return []byte(s.opts.Prefix + strconv.FormatInt(id, 10))
}

func (s *PlaceStore) defaultContent() types.Content {
	return types.Content{
		Ratings:   []types.Rating{},
		MaxRating: s.opts.MaxRating,
		Created:   s.now().Unix(),
	}
}

// withMetaDefaults copies meta and sets every unset schema key to false.
func (s *PlaceStore) withMetaDefaults(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+len(s.opts.Meta))
	maps.Copy(out, meta)
	for k := range s.opts.Meta {
		if isFalsy(out[k]) {
			out[k] = false
		}
	}
	return out
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case float64:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	}
	return false
}

func (s *PlaceStore) Create(p *types.Payload) (*types.Place, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	kv, err := s.db()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.loadIds(kv)
	if err != nil {
		return nil, err
	}
	id, err := s.allocateID(kv, ids)
	if err != nil {
		return nil, err
	}

	place := &types.Place{
		ID:       id,
		Name:     p.Name,
		User:     p.User,
		Location: *p.Location,
		Meta:     s.withMetaDefaults(p.Meta),
		Content:  s.defaultContent(),
	}
	val, err := json.Marshal(place)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding place %d", id)
	}
	idsVal, err := json.Marshal(ids.add(id))
	if err != nil {
		return nil, errors.Wrap(err, "encoding id index")
	}

	key := s.recordKey(id)
	ops := []types.Op{
		types.Put(s.idsKey(), idsVal),
		types.Put(s.seqKey(), []byte(strconv.FormatInt(id, 10))),
		types.Put(key, val),
	}
	ops = append(ops, s.finder.IndexOps(id, nil, &place.Location)...)
	if err := kv.Batch(ops); err != nil {
		return nil, errors.Wrapf(err, "writing place %d", id)
	}
	s.cache.set(key, val)
	s.syncIndex(id, &place.Location)

	s.log.Debug("created place", zap.Int64("id", id), zap.String("name", place.Name))
	return place, nil
}

func (s *PlaceStore) Get(id int64) (*types.Place, error) {
	kv, err := s.db()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(kv, id)
}

func (s *PlaceStore) get(kv types.KV, id int64) (*types.Place, error) {
	key := s.recordKey(id)
	val, ok := s.cache.get(key)
	if !ok {
		var err error
		val, err = kv.Get(key)
		if errors.Is(err, types.ErrKeyNotFound) {
			return nil, errors.Wrapf(types.ErrNotFound, "place %d", id)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading place %d", id)
		}
	}

	place, err := decodePlace(val)
	if err != nil {
		return nil, errors.Wrapf(types.ErrNotFound, "place %d: invalid record: %v", id, err)
	}
	if !ok {
		s.cache.add(key, val)
	}
	return place, nil
}

func decodePlace(val []byte) (*types.Place, error) {
	trimmed := bytes.TrimSpace(val)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("not an object")
	}
	var place types.Place
	if err := json.Unmarshal(trimmed, &place); err != nil {
		return nil, err
	}
	return &place, nil
}

// Update copies name, user, location and meta from p onto the stored place
// and folds in any new ratings. Derived rating fields in p are ignored.
func (s *PlaceStore) Update(p *types.Payload, id int64) (*types.Place, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	kv, err := s.db()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	place, err := s.get(kv, id)
	if err != nil {
		return nil, err
	}
	prev := place.Location

	place.Name = p.Name
	place.User = p.User
	place.Location = *p.Location
	if p.Meta != nil {
		place.Meta = p.Meta
	}
	place.Meta = s.withMetaDefaults(place.Meta)

	place.Content, err = foldRatings(place.Content, p.Ratings(), s.opts.MaxRating)
	if err != nil {
		return nil, err
	}

	val, err := json.Marshal(place)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding place %d", id)
	}
	key := s.recordKey(id)
	ops := []types.Op{types.Put(key, val)}
	moved := prev != place.Location
	if moved {
		ops = append(ops, s.finder.IndexOps(id, &prev, &place.Location)...)
	}
	if err := kv.Batch(ops); err != nil {
		return nil, errors.Wrapf(err, "writing place %d", id)
	}
	s.cache.set(key, val)
	if moved {
		s.syncIndex(id, &place.Location)
	}
	return place, nil
}

// Delete removes the place and its id. Unknown ids are not an error.
func (s *PlaceStore) Delete(id int64) error {
	kv, err := s.db()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	place, err := s.get(kv, id)
	if err != nil && !types.IsNotFound(err) {
		return err
	}
	ids, err := s.loadIds(kv)
	if err != nil {
		return err
	}

	key := s.recordKey(id)
	ops := []types.Op{types.Delete(key)}
	if ids.contains(id) {
		idsVal, err := json.Marshal(ids.remove(id))
		if err != nil {
			return errors.Wrap(err, "encoding id index")
		}
		ops = append(ops, types.Put(s.idsKey(), idsVal))
	}
	if place != nil {
		ops = append(ops, s.finder.IndexOps(id, &place.Location, nil)...)
	}
	if err := kv.Batch(ops); err != nil {
		return errors.Wrapf(err, "deleting place %d", id)
	}
	s.cache.del(key)
	if place != nil {
		s.syncIndex(id, nil)
	}

	s.log.Debug("deleted place", zap.Int64("id", id))
	return nil
}

// List returns one page of places starting at offset, newest first. A page
// holds at most Limit places: ids[offset : offset+Limit].
func (s *PlaceStore) List(offset int) ([]types.Place, error) {
	if offset < 0 {
		offset = 0
	}
	kv, err := s.db()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.loadIds(kv)
	if err != nil {
		return nil, err
	}
	return s.getAll(kv, ids.page(offset, s.opts.Limit))
}

// getAll fetches ids concurrently and returns them in the same order.
func (s *PlaceStore) getAll(kv types.KV, ids idIndex) ([]types.Place, error) {
	places := make([]types.Place, len(ids))
	var g errgroup.Group
	g.SetLimit(listFanout)
	for i, id := range ids {
		g.Go(func() error {
			p, err := s.get(kv, id)
			if err != nil {
				return err
			}
			places[i] = *p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return places, nil
}

func (s *PlaceStore) Count() (int, error) {
	kv, err := s.db()
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.loadIds(kv)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *PlaceStore) Nearest(q types.Location) ([]types.Neighbor, error) {
	if !q.Valid() {
		return nil, types.ErrLocationFormat
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finder.Nearest(q, s.opts.Limit)
}

// Reindex rebuilds the proximity index from the stored places.
func (s *PlaceStore) Reindex() error {
	r, ok := s.finder.(types.Rebuilder)
	if !ok {
		return nil
	}
	kv, err := s.db()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.loadIds(kv)
	if err != nil {
		return err
	}
	places, err := s.getAll(kv, ids)
	if err != nil {
		return err
	}
	points := make([]types.Neighbor, len(places))
	for i, p := range places {
		points[i] = types.Neighbor{ID: p.ID, Location: p.Location}
	}
	if err := r.Rebuild(points); err != nil {
		return errors.Wrap(err, "rebuilding proximity index")
	}
	s.log.Info("rebuilt proximity index", zap.Int("places", len(points)))
	return nil
}

func (s *PlaceStore) syncIndex(id int64, loc *types.Location) {
	if err := s.finder.Sync(id, loc); err != nil {
		s.log.Warn("proximity index out of date", zap.Int64("id", id), zap.Error(err))
	}
}
