package db

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"placestore/src/types"
)

var requiredColumns = []string{"name", "user", "lat", "lon"}

// LoadData creates a place for every row of a tab separated file. The header
// must name the columns name, user, lat and lon; any other column is stored
// as meta. It stops at the first row that fails and returns how many places
// were created before it.
func (s *PlaceStore) LoadData(r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading header")
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return 0, errors.Errorf("missing column %q", name)
		}
	}

	created := 0
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return created, errors.Wrapf(err, "row %d", row)
		}
		p, err := payloadFromRow(header, cols, record)
		if err != nil {
			return created, errors.Wrapf(err, "row %d", row)
		}
		if _, err := s.Create(p); err != nil {
			return created, errors.Wrapf(err, "row %d", row)
		}
		created++
	}
	s.log.Info("imported places", zap.Int("count", created))
	return created, nil
}

func payloadFromRow(header []string, cols map[string]int, record []string) (*types.Payload, error) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	if field("lat") == "" || field("lon") == "" {
		return nil, types.ErrLocationFormat
	}
	lat, err := cast.ToFloat64E(field("lat"))
	if err != nil {
		return nil, types.ErrLocationFormat
	}
	lon, err := cast.ToFloat64E(field("lon"))
	if err != nil {
		return nil, types.ErrLocationFormat
	}

	p := &types.Payload{
		Name:     field("name"),
		User:     field("user"),
		Location: &types.Location{lat, lon},
	}
	for i, name := range header {
		key := strings.TrimSpace(name)
		if isRequired(key) {
			continue
		}
		if i < len(record) && record[i] != "" {
			if p.Meta == nil {
				p.Meta = map[string]any{}
			}
			p.Meta[key] = record[i]
		}
	}
	return p, nil
}

func isRequired(name string) bool {
	for _, c := range requiredColumns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}
