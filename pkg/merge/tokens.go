package merge

import (
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Tokenize splits text into word tokens. Each token is a run of non-space
// characters followed by the whitespace run after it, so joining the tokens
// reproduces the input exactly. Leading whitespace forms its own token.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var tokens []string
	runes := []rune(text)
	start := 0
	i := 0

	// Leading whitespace
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}
	if i > 0 {
		tokens = append(tokens, string(runes[:i]))
		start = i
	}

	for i < len(runes) {
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		tokens = append(tokens, string(runes[start:i]))
		start = i
	}

	return tokens
}

func join(tokens []string) string {
	return strings.Join(tokens, "")
}

// tokenCodec maps every distinct token to a single rune so that the diff
// engine can run on word sequences instead of characters.
type tokenCodec struct {
	index  map[string]rune
	tokens []string
}

func newTokenCodec() *tokenCodec {
	return &tokenCodec{index: make(map[string]rune)}
}

func (c *tokenCodec) encode(tokens []string) []rune {
	out := make([]rune, len(tokens))
	for i, tok := range tokens {
		r, ok := c.index[tok]
		if !ok {
			r = runeFor(len(c.tokens))
			c.index[tok] = r
			c.tokens = append(c.tokens, tok)
		}
		out[i] = r
	}
	return out
}

// runeFor skips the surrogate block so encoded runes survive string conversion.
func runeFor(n int) rune {
	r := rune(n + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

// align returns, for each token of a, the index of the token of b it is
// matched with in a shortest edit script, or -1 when it was deleted.
func align(dmp *diffmatchpatch.DiffMatchPatch, codec *tokenCodec, a, b []string) []int {
	matches := make([]int, len(a))
	for i := range matches {
		matches[i] = -1
	}

	diffs := dmp.DiffMainRunes(codec.encode(a), codec.encode(b), false)

	ai, bi := 0, 0
	for _, d := range diffs {
		n := len([]rune(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for k := 0; k < n; k++ {
				matches[ai+k] = bi + k
			}
			ai += n
			bi += n
		case diffmatchpatch.DiffDelete:
			ai += n
		case diffmatchpatch.DiffInsert:
			bi += n
		}
	}

	return matches
}
