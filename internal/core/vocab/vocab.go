package vocab

import (
	"fmt"
	"regexp"
	"sort"
)

const (
	UnkToken = "<unk>"
	PadToken = "<pad>"
)

type TokenMode string

const (
	WordTokens TokenMode = "word"
	CharTokens TokenMode = "char"
)

var wordRe = regexp.MustCompile(`\S+`)

func ParseTokenMode(mode string) (TokenMode, error) {
	switch TokenMode(mode) {
	case WordTokens, CharTokens:
		return TokenMode(mode), nil
	default:
		return "", fmt.Errorf("invalid token mode '%s', must be 'word' or 'char'", mode)
	}
}

// Tokenize splits every line into words (runs of non-whitespace) or into
// individual characters.
func Tokenize(lines []string, mode TokenMode) [][]string {
	out := make([][]string, len(lines))
	for i, line := range lines {
		switch mode {
		case CharTokens:
			chars := make([]string, 0, len(line))
			for _, r := range line {
				chars = append(chars, string(r))
			}
			out[i] = chars
		default:
			out[i] = wordRe.FindAllString(line, -1)
		}
	}
	return out
}

type TokenFreq struct {
	Token string
	Freq  int
}

// Vocab maps tokens to integer ids. Id 0 is always the unknown token and the
// reserved tokens follow it. A Vocab is not modified after construction.
type Vocab struct {
	idxToToken []string
	tokenToIdx map[string]int
	tokenFreqs []TokenFreq
}

// New counts the tokens and keeps those occurring at least minFreq times,
// ordered by descending frequency. Ties keep the order of first occurrence.
func New(tokens [][]string, minFreq int, reserved []string) *Vocab {
	counts := make(map[string]int)
	var order []string
	for _, line := range tokens {
		for _, tok := range line {
			if counts[tok] == 0 {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	freqs := make([]TokenFreq, 0, len(order))
	for _, tok := range order {
		freqs = append(freqs, TokenFreq{Token: tok, Freq: counts[tok]})
	}
	sort.SliceStable(freqs, func(i, j int) bool {
		return freqs[i].Freq > freqs[j].Freq
	})

	v := newWithSpecials(reserved)
	v.tokenFreqs = freqs

	for _, tf := range freqs {
		if tf.Freq < minFreq {
			break
		}
		v.add(tf.Token)
	}

	return v
}

// FromTokens rebuilds a vocabulary from the id ordered token list returned by
// IdxToToken. The first entry must be the unknown token.
func FromTokens(tokens []string) (*Vocab, error) {
	if len(tokens) == 0 || tokens[0] != UnkToken {
		return nil, fmt.Errorf("vocab must start with %s", UnkToken)
	}

	v := &Vocab{tokenToIdx: make(map[string]int, len(tokens))}
	for _, tok := range tokens {
		if _, ok := v.tokenToIdx[tok]; ok {
			return nil, fmt.Errorf("duplicate token '%s' in vocab", tok)
		}
		v.add(tok)
	}
	return v, nil
}

func newWithSpecials(reserved []string) *Vocab {
	v := &Vocab{tokenToIdx: make(map[string]int)}
	v.add(UnkToken)
	for _, tok := range reserved {
		v.add(tok)
	}
	return v
}

func (v *Vocab) add(token string) {
	if _, ok := v.tokenToIdx[token]; ok {
		return
	}
	v.tokenToIdx[token] = len(v.idxToToken)
	v.idxToToken = append(v.idxToToken, token)
}

func (v *Vocab) Len() int {
	return len(v.idxToToken)
}

func (v *Vocab) Unk() int {
	return 0
}

func (v *Vocab) Index(token string) int {
	if idx, ok := v.tokenToIdx[token]; ok {
		return idx
	}
	return v.Unk()
}

func (v *Vocab) Contains(token string) bool {
	_, ok := v.tokenToIdx[token]
	return ok
}

func (v *Vocab) Indices(tokens []string) []int {
	out := make([]int, len(tokens))
	for i, tok := range tokens {
		out[i] = v.Index(tok)
	}
	return out
}

func (v *Vocab) Token(idx int) string {
	if idx < 0 || idx >= len(v.idxToToken) {
		return UnkToken
	}
	return v.idxToToken[idx]
}

func (v *Vocab) Tokens(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = v.Token(id)
	}
	return out
}

// TokenFreqs is empty for vocabularies restored with FromTokens.
func (v *Vocab) TokenFreqs() []TokenFreq {
	return v.tokenFreqs
}

func (v *Vocab) IdxToToken() []string {
	out := make([]string, len(v.idxToToken))
	copy(out, v.idxToToken)
	return out
}
