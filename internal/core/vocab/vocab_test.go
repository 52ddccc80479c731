package vocab_test

import (
	"nli-data/internal/core/vocab"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	lines := []string{"A man  is\tsleeping .", "", "héllo"}

	words := vocab.Tokenize(lines, vocab.WordTokens)
	assert.Equal(t, []string{"A", "man", "is", "sleeping", "."}, words[0])
	assert.Empty(t, words[1])
	assert.Equal(t, []string{"héllo"}, words[2])

	chars := vocab.Tokenize(lines[2:], vocab.CharTokens)
	assert.Equal(t, [][]string{{"h", "é", "l", "l", "o"}}, chars)
}

func TestParseTokenMode(t *testing.T) {
	mode, err := vocab.ParseTokenMode("char")
	require.NoError(t, err)
	assert.Equal(t, vocab.CharTokens, mode)

	_, err = vocab.ParseTokenMode("subword")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	tokens := [][]string{
		{"the", "dog", "runs"},
		{"the", "cat", "runs"},
		{"the", "bird"},
	}

	v := vocab.New(tokens, 0, []string{vocab.PadToken})

	assert.Equal(t, []string{vocab.UnkToken, vocab.PadToken, "the", "runs", "dog", "cat", "bird"}, v.IdxToToken())
	assert.Equal(t, 7, v.Len())
	assert.Equal(t, 0, v.Unk())
	assert.Equal(t, 1, v.Index(vocab.PadToken))
	assert.Equal(t, 2, v.Index("the"))

	assert.Equal(t, []vocab.TokenFreq{
		{Token: "the", Freq: 3},
		{Token: "runs", Freq: 2},
		{Token: "dog", Freq: 1},
		{Token: "cat", Freq: 1},
		{Token: "bird", Freq: 1},
	}, v.TokenFreqs())
}

func TestNewMinFreq(t *testing.T) {
	var tokens [][]string
	for i := 0; i < 5; i++ {
		tokens = append(tokens, []string{"frequent"})
	}
	tokens = append(tokens, []string{"rare", "rare", "rare", "rare"})

	v := vocab.New(tokens, 5, []string{vocab.PadToken})

	assert.Equal(t, []string{vocab.UnkToken, vocab.PadToken, "frequent"}, v.IdxToToken())
	assert.False(t, v.Contains("rare"))
	assert.Equal(t, v.Unk(), v.Index("rare"))
}

func TestUnknownTokens(t *testing.T) {
	v := vocab.New([][]string{{"a", "b"}}, 1, nil)

	assert.Equal(t, []int{1, 0, 2, 0}, v.Indices([]string{"a", "zebra", "b", ""}))
	assert.Equal(t, []string{"a", vocab.UnkToken, "b", vocab.UnkToken}, v.Tokens([]int{1, 0, 2, 99}))
	assert.Equal(t, vocab.UnkToken, v.Token(-1))
}

func TestReservedDuplicatesIgnored(t *testing.T) {
	v := vocab.New([][]string{{vocab.PadToken, "x"}}, 0, []string{vocab.PadToken, vocab.UnkToken})
	assert.Equal(t, []string{vocab.UnkToken, vocab.PadToken, "x"}, v.IdxToToken())
}

func TestFromTokens(t *testing.T) {
	original := vocab.New([][]string{{"b", "a", "a"}}, 0, []string{vocab.PadToken})

	restored, err := vocab.FromTokens(original.IdxToToken())
	require.NoError(t, err)

	assert.Equal(t, original.IdxToToken(), restored.IdxToToken())
	for _, tok := range []string{"a", "b", vocab.PadToken, "missing"} {
		assert.Equal(t, original.Index(tok), restored.Index(tok))
	}

	_, err = vocab.FromTokens([]string{"a", vocab.UnkToken})
	assert.Error(t, err)

	_, err = vocab.FromTokens([]string{vocab.UnkToken, "a", "a"})
	assert.Error(t, err)

	_, err = vocab.FromTokens(nil)
	assert.Error(t, err)
}

func TestIdxToTokenIsCopy(t *testing.T) {
	v := vocab.New([][]string{{"a"}}, 0, nil)
	tokens := v.IdxToToken()
	tokens[1] = "mutated"
	assert.Equal(t, "a", v.Token(1))
}
