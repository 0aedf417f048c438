package db

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/olivere/elastic/v7"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"placestore/src/types"
)

const geoMapping = `{
  "mappings": {
    "properties": {
      "id":       {"type": "long"},
      "location": {"type": "geo_point"}
    }
  }
}`

type geoDoc struct {
	ID       int64            `json:"id"`
	Location elastic.GeoPoint `json:"location"`
}

// ElasticFinder keeps place locations in an Elasticsearch index and serves
// nearest queries with a geo distance sort. The index is updated after the
// record batch commits and can lag behind it; Rebuild catches it up.
type ElasticFinder struct {
	Client  *elastic.Client
	Index   string
	timeout time.Duration
	log     *zap.Logger
}

func NewElasticFinder(url, index string, timeout time.Duration, log *zap.Logger) (*ElasticFinder, error) {
	if url == "" {
		return nil, errors.New("elastic url is not set")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client, err := elastic.NewClient(
		elastic.SetURL(url),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating elastic client")
	}
	ef := &ElasticFinder{Client: client, Index: index, timeout: timeout, log: log}
	if err := ef.CreateIndexWithMapping(); err != nil {
		client.Stop()
		return nil, err
	}
	return ef, nil
}

func (ef *ElasticFinder) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ef.timeout)
}

func (ef *ElasticFinder) CreateIndexWithMapping() error {
	ctx, cancel := ef.ctx()
	defer cancel()

	exists, err := ef.Client.IndexExists(ef.Index).Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "checking index %s", ef.Index)
	}
	if exists {
		return nil
	}

	createIndex, err := ef.Client.CreateIndex(ef.Index).BodyString(geoMapping).Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "creating index %s", ef.Index)
	}
	if !createIndex.Acknowledged {
		ef.log.Warn("create index was not acknowledged", zap.String("index", ef.Index))
	}
	ef.log.Info("created elastic index", zap.String("index", ef.Index))
	return nil
}

func (ef *ElasticFinder) dropIndex() error {
	ctx, cancel := ef.ctx()
	defer cancel()

	_, err := ef.Client.DeleteIndex(ef.Index).Do(ctx)
	if elastic.IsNotFound(err) {
		return nil
	}
	return errors.Wrapf(err, "deleting index %s", ef.Index)
}

func (ef *ElasticFinder) IndexOps(int64, *types.Location, *types.Location) []types.Op {
	return nil
}

func (ef *ElasticFinder) Sync(id int64, next *types.Location) error {
	ctx, cancel := ef.ctx()
	defer cancel()

	docID := strconv.FormatInt(id, 10)
	if next == nil {
		_, err := ef.Client.Delete().Index(ef.Index).Id(docID).Do(ctx)
		if elastic.IsNotFound(err) {
			return nil
		}
		return errors.Wrapf(err, "removing %s from index", docID)
	}
	doc := geoDoc{ID: id, Location: elastic.GeoPoint{Lat: next.Lat(), Lon: next.Lon()}}
	_, err := ef.Client.Index().Index(ef.Index).Id(docID).BodyJson(doc).Do(ctx)
	return errors.Wrapf(err, "indexing %s", docID)
}

func (ef *ElasticFinder) Nearest(q types.Location, limit int) ([]types.Neighbor, error) {
	ctx, cancel := ef.ctx()
	defer cancel()

	searchResult, err := ef.Client.Search().
		Index(ef.Index).
		Query(elastic.NewMatchAllQuery()).
		SortBy(elastic.NewGeoDistanceSort("location").
			Point(q.Lat(), q.Lon()).
			Asc().
			Unit("km").
			DistanceType("arc").
			IgnoreUnmapped(true)).
		Size(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "searching nearest places")
	}

	res := make([]types.Neighbor, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		var doc geoDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			ef.log.Warn("skipping malformed hit", zap.String("id", hit.Id), zap.Error(err))
			continue
		}
		n := types.Neighbor{
			ID:       doc.ID,
			Location: types.Location{doc.Location.Lat, doc.Location.Lon},
		}
		if len(hit.Sort) > 0 {
			n.Distance = cast.ToFloat64(hit.Sort[0])
		} else {
			n.Distance = Distance(q, n.Location)
		}
		res = append(res, n)
	}
	return res, nil
}

// Rebuild drops the index, creates it again and bulk indexes every point.
func (ef *ElasticFinder) Rebuild(points []types.Neighbor) error {
	if err := ef.dropIndex(); err != nil {
		return err
	}
	if err := ef.CreateIndexWithMapping(); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := ef.ctx()
	defer cancel()

	bulkRequest := ef.Client.Bulk()
	for _, p := range points {
		doc := geoDoc{ID: p.ID, Location: elastic.GeoPoint{Lat: p.Location.Lat(), Lon: p.Location.Lon()}}
		req := elastic.NewBulkIndexRequest().Index(ef.Index).Id(strconv.FormatInt(p.ID, 10)).Doc(doc)
		bulkRequest = bulkRequest.Add(req)
	}

	bulkResponse, err := bulkRequest.Do(ctx)
	if err != nil {
		return errors.Wrap(err, "bulk indexing")
	}
	failed := bulkResponse.Failed()
	for _, item := range failed {
		if item.Error != nil {
			ef.log.Warn("bulk item failed", zap.String("id", item.Id), zap.String("reason", item.Error.Reason))
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("%d of %d bulk items failed", len(failed), len(points))
	}
	return nil
}

func (ef *ElasticFinder) Start() {
	ef.Client.Start()
}

func (ef *ElasticFinder) Stop() {
	ef.Client.Stop()
}
