// Package tokenizer turns free text into the normalized, positioned terms
// used by both document processing and query construction. Indexing and
// searching must tokenize identically or field-scoped queries would miss
// their own documents.
package tokenizer

import (
	"regexp"
	"strings"

	"github.com/kljensen/snowball"
)

// nonAlphanumericRegex matches the separators between tokens.
var nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// stemmerLanguages maps the 2-letter codes accepted in field configuration to
// the snowball language names.
var stemmerLanguages = map[string]string{
	"en": "english",
	"es": "spanish",
	"fr": "french",
	"ru": "russian",
	"sv": "swedish",
	"no": "norwegian",
	"hu": "hungarian",
}

// Token is a normalized term with its 1-based position in the source text.
type Token struct {
	Text     string
	Position int
}

// Tokenize lowercases text and splits it into alphanumeric tokens with
// consecutive positions starting at 1.
func Tokenize(text string) []Token {
	split := nonAlphanumericRegex.Split(strings.ToLower(text), -1)
	tokens := make([]Token, 0, len(split))
	pos := 0
	for _, s := range split {
		if s == "" {
			continue
		}
		pos++
		tokens = append(tokens, Token{Text: s, Position: pos})
	}
	return tokens
}

// Stem reduces a word to its stem for the given 2-letter language code. An
// unknown code or a word the stemmer rejects comes back unchanged.
func Stem(word, language string) string {
	name, ok := stemmerLanguages[language]
	if !ok {
		return word
	}
	stemmed, err := snowball.Stem(word, name, false)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}

// StopwordSet builds a lookup set from a stopword list, lowercasing entries
// so membership tests match tokenized text.
func StopwordSet(words []string) map[string]bool {
	if len(words) == 0 {
		return nil
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}

// Terms runs the full normalization pipeline: tokenize, drop stopwords, stem.
// Dropped stopwords still consume their position, so phrase distances across
// a stopword stay intact.
func Terms(text, language string, stopwords map[string]bool) []Token {
	tokens := Tokenize(text)
	if language == "" && len(stopwords) == 0 {
		return tokens
	}
	kept := tokens[:0]
	for _, tok := range tokens {
		if stopwords[tok.Text] {
			continue
		}
		if language != "" {
			tok.Text = Stem(tok.Text, language)
		}
		kept = append(kept, tok)
	}
	return kept
}
