package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation([]byte(`[37.3882807, -122.0828559]`))
	require.NoError(t, err)
	assert.Equal(t, Location{37.3882807, -122.0828559}, loc)
	assert.Equal(t, 37.3882807, loc.Lat())
	assert.Equal(t, -122.0828559, loc.Lon())

	for _, in := range []string{
		`"not an array"`,
		`"37.38, -122.08"`,
		`[1]`,
		`[1, 2, 3]`,
		`["1", "2"]`,
		`[1, null]`,
		`{"lat": 1, "lon": 2}`,
		`[-91, 0]`,
		`[0, 181]`,
		`[1, 2`,
		``,
	} {
		_, err := ParseLocation([]byte(in))
		assert.ErrorIs(t, err, ErrLocationFormat, "input %q", in)
	}
}

func TestLocationValid(t *testing.T) {
	assert.True(t, Location{90, -180}.Valid())
	assert.False(t, Location{math.NaN(), 0}.Valid())
	assert.False(t, Location{0, math.Inf(1)}.Valid())
}

func TestLocationJSON(t *testing.T) {
	data, err := json.Marshal(Location{1.5, -2.25})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, -2.25]`, string(data))
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload([]byte(`{
		"name": "test location",
		"user": "jen@test.com",
		"location": [37.3882807, -122.0828559],
		"meta": {"phone": "12345"},
		"content": {"ratings": [{"user": "a", "url": "b", "score": "5"}], "average": 3},
		"id": 7
	}`))
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.Equal(t, "test location", p.Name)
	assert.Equal(t, &Location{37.3882807, -122.0828559}, p.Location)
	assert.Equal(t, map[string]any{"phone": "12345"}, p.Meta)
	assert.Equal(t, []RatingInput{{User: "a", URL: "b", Score: "5"}}, p.Ratings())

	p, err = ParsePayload([]byte(`null`))
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Nil(t, p.Ratings())

	_, err = ParsePayload([]byte(`{"name": 12}`))
	require.Error(t, err)
	assert.False(t, IsValidation(err))
}

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		doc  string
		want error
	}{
		{`{"name": "n", "user": "u", "location": [1, 2]}`, nil},
		{`{}`, ErrEmptyPost},
		{`{"id": 7}`, ErrMissingFields},
		{`{"meta": {}}`, ErrMissingFields},
		{`{"location": null}`, ErrMissingFields},
		{`{"name": "n"}`, ErrMissingFields},
		{`{"name": "n", "user": "u", "location": null}`, ErrMissingFields},
		{`{"name": "n", "user": "u", "location": 0}`, ErrMissingFields},
		{`{"name": "", "user": "u", "location": "x"}`, ErrMissingFields},
		{`{"name": "n", "user": "u", "location": "x"}`, ErrLocationFormat},
		{`{"name": "n", "user": "u", "location": true}`, ErrLocationFormat},
		{`{"name": "n", "user": "u", "location": []}`, ErrLocationFormat},
	}
	for _, tt := range tests {
		p, err := ParsePayload([]byte(tt.doc))
		require.NoError(t, err, tt.doc)
		err = p.Validate()
		if tt.want == nil {
			assert.NoError(t, err, tt.doc)
			continue
		}
		assert.ErrorIs(t, err, tt.want, tt.doc)
	}

	var nilPayload *Payload
	assert.ErrorIs(t, nilPayload.Validate(), ErrEmptyPost)

	bad := Location{100, 0}
	assert.ErrorIs(t, (&Payload{Name: "n", User: "u", Location: &bad}).Validate(), ErrLocationFormat)
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, IsValidation(errors.Wrap(ErrScoreTooHigh, "rating 2")))
	assert.False(t, IsValidation(ErrNotFound))
	assert.True(t, IsNotFound(errors.Wrapf(ErrNotFound, "place %d", 3)))
	assert.False(t, IsNotFound(ErrKeyNotFound))
	assert.Equal(t, "score is higher than maxRating", ErrScoreTooHigh.Error())
}
