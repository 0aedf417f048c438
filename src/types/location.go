package types

import (
	"bytes"
	"encoding/json"
	"math"
)

// Location is a [lat, lon] pair in degrees.
type Location [2]float64

func (l Location) Lat() float64 { return l[0] }
func (l Location) Lon() float64 { return l[1] }

func (l Location) Valid() bool {
	lat, lon := l[0], l[1]
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return math.Abs(lat) <= 90 && math.Abs(lon) <= 180
}

// UnmarshalJSON accepts only a two element array of numbers.
func (l *Location) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) != 2 {
		return ErrLocationFormat
	}
	var loc Location
	for i, p := range parts {
		p = bytes.TrimSpace(p)
		if len(p) == 0 || bytes.Equal(p, []byte("null")) {
			return ErrLocationFormat
		}
		if err := json.Unmarshal(p, &loc[i]); err != nil {
			return ErrLocationFormat
		}
	}
	if !loc.Valid() {
		return ErrLocationFormat
	}
	*l = loc
	return nil
}

// ParseLocation decodes a query coordinate such as `[37.38, -122.08]`.
func ParseLocation(data []byte) (Location, error) {
	var l Location
	if err := json.Unmarshal(data, &l); err != nil {
		return Location{}, ErrLocationFormat
	}
	return l, nil
}
