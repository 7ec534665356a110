package csvimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidRows(t *testing.T) {
	text := "title,reward,repo\n" +
		"Fix bug,$100,acme/api\n" +
		"Add feature,$2500.00,acme/web\n"
	res := Parse(text)
	require.Len(t, res.Records, 2)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "Fix bug", res.Records[0].Title)
	require.NotNil(t, res.Records[0].Value)
	assert.Equal(t, 100.0, *res.Records[0].Value)
	assert.Equal(t, "acme/api", res.Records[0].Repo)
}

func TestParseMissingTitleRow(t *testing.T) {
	text := "title,reward\n" +
		"First,$10\n" +
		",$20\n" +
		"Third,$30\n"
	res := Parse(text)
	require.Len(t, res.Records, 2)
	require.Len(t, res.Errors, 1)
	// Header is line 1, so the second data row is file line 3.
	assert.Contains(t, res.Errors[0], "line 3")
}

func TestParseThousandsSeparators(t *testing.T) {
	text := "name,reward\nBig one,\"$1,234.50\"\n"
	res := Parse(text)
	require.Len(t, res.Records, 1)
	require.NotNil(t, res.Records[0].Value)
	assert.Equal(t, 1234.50, *res.Records[0].Value)
}

func TestParseQuotedCommaField(t *testing.T) {
	text := "title,labels\nFix,\"bug, good-first-issue\"\n"
	res := Parse(text)
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"bug", "good-first-issue"}, res.Records[0].Labels)
}

func TestParseDoubledQuoteEscape(t *testing.T) {
	text := "title,labels\n\"Say \"\"hello\"\"\",bug\n"
	res := Parse(text)
	require.Len(t, res.Records, 1)
	assert.Equal(t, `Say "hello"`, res.Records[0].Title)
}

func TestSplitMultiMixedSeparators(t *testing.T) {
	got := SplitMulti("bug,ui|feature")
	assert.Equal(t, []string{"bug", "ui", "feature"}, got)

	got = SplitMulti("bug;;bug, ,ui")
	assert.Equal(t, []string{"bug", "ui"}, got)
}

func TestParseMoney(t *testing.T) {
	cases := map[string]*float64{
		"$1,234.50":   f(1234.50),
		"1000":        f(1000),
		"USD 250.00":  f(250),
		"up to $75":   f(75),
		"negotiable":  nil,
		"":            nil,
		"$.99 promo":  f(99), // no leading digit before the dot, matches "99"
	}
	for in, want := range cases {
		got := ParseMoney(in)
		if want == nil {
			assert.Nil(t, got, "input %q", in)
			continue
		}
		require.NotNil(t, got, "input %q", in)
		assert.Equal(t, *want, *got, "input %q", in)
	}
}

func TestSynonymFallbackHeaderOrder(t *testing.T) {
	// Neither header matches "labels" synonyms exactly; both satisfy the
	// substring relationship. The first column in file order must win.
	text := "title,tag-list,category-name\nX,alpha,beta\n"
	res := Parse(text)
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"alpha"}, res.Records[0].Labels)

	// Reversed column order flips the winner.
	text = "title,category-name,tag-list\nX,beta,alpha\n"
	res = Parse(text)
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"beta"}, res.Records[0].Labels)
}

func TestParseEmptyInput(t *testing.T) {
	for _, text := range []string{"", "title,reward\n", "title,reward"} {
		res := Parse(text)
		assert.Empty(t, res.Records)
		assert.NotEmpty(t, res.Errors)
	}
}

func TestParseIdempotent(t *testing.T) {
	text := "title,reward,tags\nA,$5,\"x,y\"\nB,,z\n,$9,\n"
	first := Parse(text)
	second := Parse(text)
	assert.Equal(t, first, second)
}

func TestParseTemplate(t *testing.T) {
	res := Parse(Template)
	require.Len(t, res.Records, 3)
	assert.Empty(t, res.Errors)
	require.NotNil(t, res.Records[1].Value)
	assert.Equal(t, 1000.0, *res.Records[1].Value)
	assert.Equal(t, []string{"feature", "ui"}, res.Records[1].Labels)
	assert.Equal(t, []string{"typescript", "react"}, res.Records[1].Technologies)
}

func f(v float64) *float64 { return &v }
