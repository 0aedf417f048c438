package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placestore/src/types"
)

func TestFoldRatings(t *testing.T) {
	start := types.Content{
		Ratings:      []types.Rating{{User: "old", URL: "u", Score: 2}},
		TotalRatings: 2,
		Average:      2,
		MaxRating:    5,
	}

	got, err := foldRatings(start, []types.RatingInput{
		{User: "a", URL: "x", Score: 5},
		{User: " b ", URL: "y", Score: " 4 "},
		{User: "c", URL: "z", Score: 3.0},
	}, 5)
	require.NoError(t, err)

	assert.Equal(t, []types.Rating{
		{User: "c", URL: "z", Score: 3},
		{User: " b ", URL: "y", Score: 4},
		{User: "a", URL: "x", Score: 5},
		{User: "old", URL: "u", Score: 2},
	}, got.Ratings)
	assert.Equal(t, 14, got.TotalRatings)
	assert.Equal(t, 3.5, got.Average)

	assert.Len(t, start.Ratings, 1, "input content is not modified")
	assert.Equal(t, 2, start.TotalRatings)
}

func TestFoldRatingsEmpty(t *testing.T) {
	start := types.Content{Ratings: []types.Rating{}, MaxRating: 5}
	got, err := foldRatings(start, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, start, got)
}

func TestFoldRatingsZeroScore(t *testing.T) {
	got, err := foldRatings(types.Content{}, []types.RatingInput{{User: "a", URL: "b", Score: "0"}}, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalRatings)
	assert.Equal(t, 0.0, got.Average)
	assert.Len(t, got.Ratings, 1)
}

func TestCheckRating(t *testing.T) {
	tests := []struct {
		name string
		in   types.RatingInput
		want error
	}{
		{"empty user", types.RatingInput{URL: "b", Score: 1}, types.ErrRatingEmpty},
		{"whitespace url", types.RatingInput{User: "a", URL: " \n ", Score: 1}, types.ErrRatingEmpty},
		{"word", types.RatingInput{User: "a", URL: "b", Score: "puppy"}, types.ErrScoreNotNumber},
		{"fraction", types.RatingInput{User: "a", URL: "b", Score: 4.5}, types.ErrScoreNotNumber},
		{"empty string", types.RatingInput{User: "a", URL: "b", Score: "  "}, types.ErrScoreNotNumber},
		{"bool", types.RatingInput{User: "a", URL: "b", Score: true}, types.ErrScoreNotNumber},
		{"over max", types.RatingInput{User: "a", URL: "b", Score: 6}, types.ErrScoreTooHigh},
		{"overflow", types.RatingInput{User: "a", URL: "b", Score: "99999999999999999999999"}, types.ErrScoreTooHigh},
		{"max", types.RatingInput{User: "a", URL: "b", Score: 5}, nil},
		{"spaced digits", types.RatingInput{User: "a", URL: "b", Score: "1 0"}, types.ErrScoreTooHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := checkRating(tt.in, 5)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}
