package moderation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// placeholder masks safe phrases before scanning. It is a zero-width space:
// one rune per masked rune, and never a word character.
const placeholder = '\u200b'

// Config holds the two term sets the filter is built from.
type Config struct {
	BlockedTerms []string `yaml:"blocked_terms" toml:"blocked_terms"`
	SafePhrases  []string `yaml:"safe_phrases" toml:"safe_phrases"`
}

// Result is the outcome of evaluating one text.
type Result struct {
	Flagged bool
	Matches []string
}

type blockedTerm struct {
	original string
	folded   []rune
	ascii    bool
}

// Filter rejects abusive text. It is immutable after construction and safe
// for concurrent use.
type Filter struct {
	blocked []blockedTerm
	safe    []string // longest first
}

// NewFilter validates cfg and builds a Filter from it.
func NewFilter(cfg Config) (*Filter, error) {
	if len(cfg.BlockedTerms) == 0 {
		return nil, errors.New("moderation: no blocked terms configured")
	}

	f := &Filter{}
	seen := make(map[string]bool, len(cfg.BlockedTerms))
	for i, term := range cfg.BlockedTerms {
		if strings.TrimSpace(term) == "" {
			return nil, fmt.Errorf("moderation: blocked term %d is empty", i)
		}
		if seen[term] {
			continue
		}
		seen[term] = true
		f.blocked = append(f.blocked, blockedTerm{
			original: term,
			folded:   []rune(foldASCII(term)),
			ascii:    isASCII(term),
		})
	}

	for i, phrase := range cfg.SafePhrases {
		if phrase == "" {
			return nil, fmt.Errorf("moderation: safe phrase %d is empty", i)
		}
		f.safe = append(f.safe, phrase)
	}
	sort.SliceStable(f.safe, func(i, j int) bool {
		return utf8.RuneCountInString(f.safe[i]) > utf8.RuneCountInString(f.safe[j])
	})

	return f, nil
}

// Evaluate reports whether text contains any blocked term. Matches are the
// distinct blocked terms found, in configuration order.
func (f *Filter) Evaluate(text string) Result {
	if text == "" {
		return Result{}
	}

	working := text
	for _, phrase := range f.safe {
		if strings.Contains(working, phrase) {
			mask := strings.Repeat(string(placeholder), utf8.RuneCountInString(phrase))
			working = strings.ReplaceAll(working, phrase, mask)
		}
	}

	folded := []rune(foldASCII(working))

	var matches []string
	for _, term := range f.blocked {
		if term.ascii {
			if containsWord(folded, term.folded) {
				matches = append(matches, term.original)
			}
			continue
		}
		if indexRunes(folded, term.folded, 0) >= 0 {
			matches = append(matches, term.original)
		}
	}

	return Result{Flagged: len(matches) > 0, Matches: matches}
}

// containsWord finds term in text where neither neighbour is a word character.
func containsWord(text, term []rune) bool {
	from := 0
	for {
		pos := indexRunes(text, term, from)
		if pos < 0 {
			return false
		}
		end := pos + len(term)
		before := pos == 0 || !isWordRune(text[pos-1])
		after := end >= len(text) || !isWordRune(text[end])
		if before && after {
			return true
		}
		from = pos + 1
	}
}

func indexRunes(text, term []rune, from int) int {
	if len(term) == 0 {
		return -1
	}
	for i := from; i+len(term) <= len(text); i++ {
		match := true
		for j, r := range term {
			if text[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// foldASCII lower-cases ASCII letters only.
func foldASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
