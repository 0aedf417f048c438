package db

import (
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cast"

	"placestore/src/types"
)

// foldRatings validates every input first and then folds them into a copy of
// content. On error content is returned untouched.
func foldRatings(content types.Content, inputs []types.RatingInput, maxRating int) (types.Content, error) {
	if len(inputs) == 0 {
		return content, nil
	}

	accepted := make([]types.Rating, 0, len(inputs))
	for _, in := range inputs {
		r, err := checkRating(in, maxRating)
		if err != nil {
			return content, err
		}
		accepted = append(accepted, r)
	}

	out := content
	ratings := make([]types.Rating, 0, len(content.Ratings)+len(accepted))
	for _, r := range slices.Backward(accepted) {
		ratings = append(ratings, r)
		out.TotalRatings += r.Score
	}
	out.Ratings = append(ratings, content.Ratings...)
	out.Average = float64(out.TotalRatings) / float64(len(out.Ratings))
	return out, nil
}

func checkRating(in types.RatingInput, maxRating int) (types.Rating, error) {
	if stripSpace(in.User) == "" || stripSpace(in.URL) == "" {
		return types.Rating{}, types.ErrRatingEmpty
	}
	raw, err := cast.ToStringE(in.Score)
	if err != nil {
		return types.Rating{}, types.ErrScoreNotNumber
	}
	raw = stripSpace(raw)
	if raw == "" || strings.IndexFunc(raw, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return types.Rating{}, types.ErrScoreNotNumber
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		// only digits, so this is an overflow
		return types.Rating{}, types.ErrScoreTooHigh
	}
	if score > maxRating {
		return types.Rating{}, types.ErrScoreTooHigh
	}
	return types.Rating{User: in.User, URL: in.URL, Score: score}, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
