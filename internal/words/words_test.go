package words

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	in := "category,real_word,imposter_word\nfood, apples, fruit\nsports,soccer,sport\n"
	pairs, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "food", pairs[0].Category)
	assert.Equal(t, "apples", pairs[0].RealWord)
	assert.Equal(t, "fruit", pairs[0].ImposterWord)
}

func TestReadCSVRejectsIdenticalWords(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("misc,cat,Cat\n"))
	assert.Error(t, err)
}

func TestReadCSVRejectsShortRows(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("misc,cat\n"))
	assert.Error(t, err)
}

func TestDefaultCatalog(t *testing.T) {
	require.NotEmpty(t, Default)
	seen := map[string]bool{}
	for _, p := range Default {
		assert.NotEqual(t, p.RealWord, p.ImposterWord)
		assert.False(t, seen[p.RealWord], "duplicate pair %s", p.RealWord)
		seen[p.RealWord] = true
		assert.Zero(t, p.ID, "stores assign ids")
	}
}
