package moderation

import (
	"errors"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Censor rewrites message content before it is stored.
type Censor interface {
	Censor(content string) string
}

// Moderator masks banned words using an Aho-Corasick automaton built over
// normalized patterns. Matching ignores case, punctuation, whitespace and a
// handful of leet substitutions, while the masking is applied to the original
// runes so spacing and unrelated characters survive.
type Moderator struct {
	machine     *goahocorasick.Machine
	replacement rune
}

// New builds a Moderator. Words that normalize to nothing are ignored.
func New(words []string, replacement rune) (*Moderator, error) {
	patterns := lo.FilterMap(words, func(word string, _ int) ([]rune, bool) {
		normalized, _ := normalize(strings.TrimSpace(word))
		return normalized, len(normalized) > 0
	})
	if len(patterns) == 0 {
		return nil, errors.New("moderation: no usable words")
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{machine: machine, replacement: replacement}, nil
}

// Censor returns content with every matched word masked.
func (m *Moderator) Censor(content string) string {
	if m == nil || content == "" {
		return content
	}

	normalized, positions := normalize(content)
	if len(normalized) == 0 {
		return content
	}

	terms := m.machine.MultiPatternSearch(normalized, false)
	if len(terms) == 0 {
		return content
	}

	runes := []rune(content)
	for _, term := range terms {
		start := term.Pos
		end := start + len(term.Word)
		if start < 0 || end > len(positions) {
			continue
		}
		for i := positions[start]; i <= positions[end-1]; i++ {
			runes[i] = m.replacement
		}
	}
	return string(runes)
}

// normalize folds s into its searchable form and records, for every kept rune,
// its index in the original rune slice.
func normalize(s string) ([]rune, []int) {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	positions := make([]int, 0, len(runes))
	for i, r := range runes {
		r = fold(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
		positions = append(positions, i)
	}
	return out, positions
}

func fold(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	}
	return r
}
