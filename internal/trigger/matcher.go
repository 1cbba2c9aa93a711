package trigger

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

var ErrEmptyPhrase = errors.New("trigger: phrase must not be empty")

// Matcher decides whether a channel topic satisfies the configured phrase.
//
// Contract:
//   - Case-sensitive mode: exact substring containment.
//   - Case-insensitive mode: substring containment after Unicode case
//     folding both sides.
//   - No regex, word-boundary or multi-phrase logic.
type Matcher struct {
	phrase        string
	caseSensitive bool

	// phrase pre-folded once for the insensitive mode
	folded string
}

func NewMatcher(phrase string, caseSensitive bool) (*Matcher, error) {
	if phrase == "" {
		return nil, ErrEmptyPhrase
	}
	m := &Matcher{phrase: phrase, caseSensitive: caseSensitive}
	if !caseSensitive {
		m.folded = fold(phrase)
	}
	return m, nil
}

// Match reports whether topic contains the trigger phrase.
func (m *Matcher) Match(topic string) bool {
	if topic == "" {
		return false
	}
	if m.caseSensitive {
		return strings.Contains(topic, m.phrase)
	}
	return strings.Contains(fold(topic), m.folded)
}

func (m *Matcher) Phrase() string      { return m.phrase }
func (m *Matcher) CaseSensitive() bool { return m.caseSensitive }

// A cases.Caser is stateful, so build one per call instead of sharing.
func fold(s string) string { return cases.Fold().String(s) }
