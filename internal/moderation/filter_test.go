package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultFilter(t *testing.T) *Filter {
	t.Helper()
	f, err := NewFilter(DefaultConfig())
	require.NoError(t, err)
	return f
}

func TestEvaluate(t *testing.T) {
	f := newDefaultFilter(t)

	tests := []struct {
		name    string
		text    string
		flagged bool
		matches []string
	}{
		{name: "empty", text: "", flagged: false},
		{name: "plain greeting", text: "hello, is this your wallet?", flagged: false},
		{name: "chinese safe phrase in sentence", text: "日本料理很好吃", flagged: false},
		{name: "chinese blocked term", text: "傻逼", flagged: true, matches: []string{"傻逼"}},
		{name: "ascii term inside longer word", text: "skill", flagged: false},
		{name: "ascii term standalone", text: "kill", flagged: true, matches: []string{"kill"}},
		{name: "ascii term is case folded", text: "I will KILL you", flagged: true, matches: []string{"kill"}},
		{name: "ascii term next to punctuation", text: "what a fool!", flagged: true, matches: []string{"fool"}},
		{name: "ascii term followed by underscore", text: "kill_switch", flagged: false},
		{name: "ascii term followed by digit", text: "die2", flagged: false},
		{name: "ascii term followed by superscript digit", text: "kill²", flagged: false},
		{name: "ascii term followed by vulgar fraction", text: "kill½", flagged: false},
		{name: "ascii term after roman numeral", text: "Ⅻkill", flagged: false},
		{name: "distinct matches in term order", text: "idiot, stupid idiot", flagged: true, matches: []string{"stupid", "idiot"}},
		{name: "safe phrase hides blocked char", text: "他是我的死党", flagged: false},
		{name: "safe phrase then blocked term", text: "操场上有人说傻逼", flagged: true, matches: []string{"傻逼"}},
		{name: "mask keeps boundary after safe phrase", text: "曹操SB", flagged: true, matches: []string{"SB"}},
		{name: "blocked term embedded in ascii word", text: "ASBESTOS", flagged: false},
		{name: "non-ascii term needs no boundary", text: "这是垃圾桶", flagged: true, matches: []string{"垃圾"}},
		{name: "password is not flagged", text: "I forgot my password in class", flagged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.Evaluate(tt.text)
			assert.Equal(t, tt.flagged, res.Flagged)
			assert.Equal(t, tt.matches, res.Matches)
		})
	}
}

func TestEverySafePhraseAloneIsClean(t *testing.T) {
	f := newDefaultFilter(t)
	for _, phrase := range DefaultConfig().SafePhrases {
		res := f.Evaluate(phrase)
		assert.False(t, res.Flagged, "safe phrase %q was flagged with %v", phrase, res.Matches)
	}
}

func TestEveryBlockedTermAloneIsFlagged(t *testing.T) {
	f := newDefaultFilter(t)
	for _, term := range DefaultConfig().BlockedTerms {
		res := f.Evaluate(term)
		assert.True(t, res.Flagged, "blocked term %q was not flagged", term)
		assert.Contains(t, res.Matches, term)
	}
}

func TestASCIITermsRequireWordBoundaries(t *testing.T) {
	f := newDefaultFilter(t)
	for _, term := range DefaultConfig().BlockedTerms {
		if !isASCII(term) {
			continue
		}
		for _, text := range []string{"x" + term + "x", term + "_"} {
			res := f.Evaluate(text)
			assert.False(t, res.Flagged, "%q was flagged with %v", text, res.Matches)
		}
	}
}

func TestLongerSafePhraseMaskedFirst(t *testing.T) {
	f, err := NewFilter(Config{
		BlockedTerms: []string{"x"},
		SafePhrases:  []string{"xab", "xabx"},
	})
	require.NoError(t, err)

	// "xabx" must be masked whole; masking "xab" first would leave a bare "x".
	assert.False(t, f.Evaluate("xabx").Flagged)
	assert.False(t, f.Evaluate("xab").Flagged)
	assert.True(t, f.Evaluate("x").Flagged)
}

func TestNewFilterRejectsBadConfig(t *testing.T) {
	_, err := NewFilter(Config{})
	assert.Error(t, err)

	_, err = NewFilter(Config{BlockedTerms: []string{"ok", "  "}})
	assert.Error(t, err)

	_, err = NewFilter(Config{BlockedTerms: []string{"ok"}, SafePhrases: []string{""}})
	assert.Error(t, err)
}

func TestDuplicateBlockedTermsReportedOnce(t *testing.T) {
	f, err := NewFilter(Config{BlockedTerms: []string{"spam", "spam"}})
	require.NoError(t, err)

	res := f.Evaluate("spam spam spam")
	assert.Equal(t, []string{"spam"}, res.Matches)
}
