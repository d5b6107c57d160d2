package llmjson

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractArray(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "bare array", text: `[{"id":"1"}]`, want: `[{"id":"1"}]`},
		{name: "prose around array", text: "Here are the results:\n[1, 2, 3]\nLet me know!", want: `[1, 2, 3]`},
		{name: "code fence", text: "```json\n[{\"url\":\"a\",\"min\":100}]\n```", want: `[{"url":"a","min":100}]`},
		{name: "bracket in prose before array", text: "Note [see below]: [{\"id\":2}]", want: `[{"id":2}]`},
		{name: "nested arrays", text: `x [[1],[2]] y`, want: `[[1],[2]]`},
		{name: "first of two arrays", text: `[1] and [2]`, want: `[1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ExtractArray(tt.text)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestExtractArray_NoArray(t *testing.T) {
	for _, text := range []string{"", "   ", "sorry, I can't help", `{"id": 1}`, `[{"id": 1}`} {
		_, err := ExtractArray(text)
		require.Error(t, err, text)
		assert.True(t, errors.Is(err, ErrNoArray))

		var pe *ParseError
		assert.True(t, errors.As(err, &pe))
	}
}

func TestDecodeArray_SkipsBadElements(t *testing.T) {
	type item struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	}
	got, err := DecodeArray[item](`Scores: [{"id":"a","score":81}, {"id":"b","score":"high"}, null, {"id":"c","score":12.6}]`)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestSnippet_KeepsRunesWhole(t *testing.T) {
	// 119 ASCII bytes then a 3-byte rune straddling the cut.
	text := strings.Repeat("a", snippetLen-1) + "€€€"

	got := snippet(text)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", snippetLen-1), got)
}

func TestExtractArray_ErrorSnippetIsValidUTF8(t *testing.T) {
	_, err := ExtractArray(strings.Repeat("é", snippetLen))

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.True(t, utf8.ValidString(pe.Snippet))
	assert.LessOrEqual(t, len(pe.Snippet), snippetLen)
}
