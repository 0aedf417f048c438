package types

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Payload is a caller supplied document for create and update. Only name,
// user, location and meta are ever copied onto a stored place; content is
// read for new ratings only.
type Payload struct {
	Name     string          `json:"name"`
	User     string          `json:"user"`
	Location *Location       `json:"location"`
	Meta     map[string]any  `json:"meta,omitempty"`
	Content  *PayloadContent `json:"content,omitempty"`

	// set when location was present but not a [lat, lon] array
	badLocation bool
	// number of keys in the decoded JSON object
	keys int
}

type PayloadContent struct {
	Ratings []RatingInput `json:"ratings"`

	// derived fields, accepted on the wire and never applied
	Average      any `json:"average,omitempty"`
	TotalRatings any `json:"totalRatings,omitempty"`
}

// RatingInput is a rating as submitted. Score may be a number or a string.
type RatingInput struct {
	User  string `json:"user"`
	URL   string `json:"url"`
	Score any    `json:"score"`
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     string          `json:"name"`
		User     string          `json:"user"`
		Location json.RawMessage `json:"location"`
		Meta     map[string]any  `json:"meta"`
		Content  *PayloadContent `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*p = Payload{
		Name:    raw.Name,
		User:    raw.User,
		Meta:    raw.Meta,
		Content: raw.Content,
		keys:    len(fields),
	}
	if isFalsyJSON(raw.Location) {
		return nil
	}
	var loc Location
	if err := json.Unmarshal(raw.Location, &loc); err != nil {
		p.badLocation = true
		return nil
	}
	p.Location = &loc
	return nil
}

func isFalsyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "0", "false":
		return true
	}
	return false
}

// ParsePayload decodes a JSON document. A JSON null decodes to a nil payload.
func ParsePayload(data []byte) (*Payload, error) {
	if isFalsyJSON(data) {
		return nil, nil
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "decoding payload")
	}
	return &p, nil
}

// isEmpty reports an object without keys. Unknown keys count, so {"id": 7}
// is a payload with missing fields.
func (p *Payload) isEmpty() bool {
	return p.keys == 0 && p.Name == "" && p.User == "" && p.Location == nil &&
		!p.badLocation && p.Meta == nil && p.Content == nil
}

// Validate checks the payload; the first failing check wins.
func (p *Payload) Validate() error {
	if p == nil || p.isEmpty() {
		return ErrEmptyPost
	}
	if p.Name == "" || p.User == "" || (p.Location == nil && !p.badLocation) {
		return ErrMissingFields
	}
	if p.badLocation || !p.Location.Valid() {
		return ErrLocationFormat
	}
	return nil
}

// Ratings returns the new ratings carried by the payload, if any.
func (p *Payload) Ratings() []RatingInput {
	if p == nil || p.Content == nil {
		return nil
	}
	return p.Content.Ratings
}
