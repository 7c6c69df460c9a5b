// Package annotate derives sentiment, emoji and language tags from message
// text.
package annotate

import (
	"errors"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
	"github.com/thereayou/letstalk/internal/chat"
)

const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

var (
	DefaultPositive = []string{
		"good", "great", "love", "happy", "awesome", "nice", "thanks", "thank",
		"excellent", "fun", "cool", "amazing", "glad", "like", "best", "wonderful",
	}
	DefaultNegative = []string{
		"bad", "hate", "sad", "terrible", "awful", "angry", "worst", "sucks",
		"boring", "annoying", "ugly", "horrible", "wrong", "broken", "upset",
	}
)

var ErrEmptyLexicon = errors.New("lexicon needs at least one word")

// Lexicon scores text by counting whole-word hits of positive and negative
// words. It is safe for concurrent use.
type Lexicon struct {
	matcher *goahocorasick.Machine
	weights map[string]int
}

func NewLexicon(positive, negative []string) (*Lexicon, error) {
	weights := make(map[string]int)
	for _, w := range positive {
		weights[strings.ToLower(w)] = 1
	}
	for _, w := range negative {
		weights[strings.ToLower(w)] = -1
	}
	delete(weights, "")
	if len(weights) == 0 {
		return nil, ErrEmptyLexicon
	}

	patterns := lo.Map(lo.Keys(weights), func(w string, _ int) []rune {
		return []rune(w)
	})
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Lexicon{matcher: m, weights: weights}, nil
}

// NewDefaultLexicon uses DefaultPositive and DefaultNegative.
func NewDefaultLexicon() (*Lexicon, error) {
	return NewLexicon(DefaultPositive, DefaultNegative)
}

func (l *Lexicon) Annotate(text string) chat.Tags {
	tags := tagsFor(l.Score(text))
	tags.Language = detectLanguage(text)
	return tags
}

// Score sums the weights of every whole-word match in text.
func (l *Lexicon) Score(text string) int {
	runes := []rune(strings.ToLower(text))
	if len(runes) == 0 {
		return 0
	}

	score := 0
	for _, term := range l.matcher.MultiPatternSearch(runes, false) {
		start, end := term.Pos, term.Pos+len(term.Word)
		if !isBoundary(runes, start-1) || !isBoundary(runes, end) {
			continue
		}
		score += l.weights[string(term.Word)]
	}
	return score
}

func tagsFor(score int) chat.Tags {
	switch {
	case score > 0:
		return chat.Tags{Sentiment: Positive, Emoji: "😊"}
	case score < 0:
		return chat.Tags{Sentiment: Negative, Emoji: "😞"}
	default:
		return chat.Tags{Sentiment: Neutral, Emoji: "😐"}
	}
}

func isBoundary(runes []rune, i int) bool {
	if i < 0 || i >= len(runes) {
		return true
	}
	r := runes[i]
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// detectLanguage returns the ISO 639-1 code of text, or "" when the guess is
// not reliable (typically very short messages).
func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
