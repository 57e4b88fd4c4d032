package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSelector struct {
	index int
	err   error
	seen  []string
}

func (s *fixedSelector) Select(_ context.Context, choices []string) (int, error) {
	s.seen = choices
	return s.index, s.err
}

func TestResolve(t *testing.T) {
	titles := []string{"Date A Live II", "Date A Live", "Toaru Kagaku no Railgun", "Ｋ-ON!"}
	aliases := map[string]string{
		"railgun": "Toaru Kagaku no Railgun",
		"dal":     "Date A Live",
		"stale":   "Deleted Show",
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"substring case insensitive", "date a live", []string{"Date A Live", "Date A Live II"}},
		{"no match", "zzz-nonexistent", []string{}},
		{"alias rewritten", "RAILGUN", []string{"Toaru Kagaku no Railgun"}},
		{"alias and title dedup", "da", []string{"Date A Live", "Date A Live II"}},
		{"alias to missing project ignored", "stale", []string{}},
		{"unicode fold", "ｋ-on", []string{"Ｋ-ON!"}},
		{"blank query", "   ", []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.query, titles, aliases))
		})
	}
}

func TestResolveSpecExamples(t *testing.T) {
	assert.Equal(t, []string{"Date A Live", "Date A Live II"},
		Resolve("date a live", []string{"Date A Live", "Date A Live II"}, map[string]string{}))
	assert.Equal(t, []string{}, Resolve("zzz-nonexistent", []string{"Date A Live"}, map[string]string{}))
}

func TestPick(t *testing.T) {
	ctx := context.Background()

	_, err := Pick(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrNoMatch)

	got, err := Pick(ctx, []string{"Only"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Only", got)

	_, err = Pick(ctx, []string{"A", "B"}, nil)
	var amb *AmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []string{"A", "B"}, amb.Candidates)

	sel := &fixedSelector{index: 1}
	got, err = Pick(ctx, []string{"A", "B"}, sel)
	require.NoError(t, err)
	assert.Equal(t, "B", got)
}

func TestPickOffersAtMostTenChoices(t *testing.T) {
	var matches []string
	for i := 0; i < 15; i++ {
		matches = append(matches, fmt.Sprintf("Show %02d", i))
	}

	sel := &fixedSelector{index: 12}
	_, err := Pick(context.Background(), matches, sel)
	assert.ErrorIs(t, err, ErrSelectionCancelled)
	assert.Len(t, sel.seen, MaxChoices)
	assert.Equal(t, "Show 09", sel.seen[MaxChoices-1])
}

func TestPickPropagatesSelectorError(t *testing.T) {
	boom := errors.New("timeout")
	_, err := Pick(context.Background(), []string{"A", "B"}, &fixedSelector{err: boom})
	assert.ErrorIs(t, err, boom)
}
