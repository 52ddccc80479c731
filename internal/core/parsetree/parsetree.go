package parsetree

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

/*
Parser for the bracketed binary parses shipped with SNLI, e.g.

	( ( A person ) ( ( is ( on ( a horse ) ) ) . ) )

Grammar:

Tree := "(" Tree+ ")" | Word
Word := any run of characters other than whitespace and parentheses
*/

var (
	treeLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Paren", Pattern: `[()]`},
		{Name: "Word", Pattern: `[^\s()]+`},
		{Name: "Whitespace", Pattern: `\s+`},
	})

	parser = participle.MustBuild[Tree](
		participle.Lexer(treeLexer),
		participle.Elide("Whitespace"),
	)
)

type Tree struct {
	Children []*Tree `parser:"  \"(\" @@+ \")\""`
	Word     string  `parser:"| @Word"`
}

func Parse(s string) (*Tree, error) {
	tree, err := parser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("error parsing tree '%s': %w", s, err)
	}
	return tree, nil
}

func (t *Tree) IsLeaf() bool {
	return len(t.Children) == 0
}

// Leaves returns the words of the tree from left to right.
func (t *Tree) Leaves() []string {
	var out []string
	t.collect(&out)
	return out
}

func (t *Tree) collect(out *[]string) {
	if t.IsLeaf() {
		*out = append(*out, t.Word)
		return
	}
	for _, c := range t.Children {
		c.collect(out)
	}
}

// Depth of a single word is 0, each enclosing bracket adds one.
func (t *Tree) Depth() int {
	if t.IsLeaf() {
		return 0
	}
	depth := 0
	for _, c := range t.Children {
		depth = max(depth, c.Depth())
	}
	return depth + 1
}

func (t *Tree) Text() string {
	return strings.Join(t.Leaves(), " ")
}

func (t *Tree) String() string {
	if t.IsLeaf() {
		return t.Word
	}
	parts := make([]string, 0, len(t.Children))
	for _, c := range t.Children {
		parts = append(parts, c.String())
	}
	return "( " + strings.Join(parts, " ") + " )"
}
