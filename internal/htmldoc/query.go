package htmldoc

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// ErrInvalidSelector is returned for structural queries that cannot be parsed.
var ErrInvalidSelector = errors.New("invalid selector")

// Supported structural query subset:
//   - tag: "div", "h3"
//   - #id and .class, combinable: "div#summary", "p.bolder"
//   - [attr] and [attr=val]
//   - descendant (space), child (">") and adjacent sibling ("+") combinators
type combinator byte

const (
	combNone       combinator = 0
	combDescendant combinator = ' '
	combChild      combinator = '>'
	combAdjacent   combinator = '+'
)

type compound struct {
	tag     string
	id      string
	attrKey string
	attrVal string
	classes []string
	hasAttr bool
}

type step struct {
	comp compound
	comb combinator // relation to the previous step
}

// Selector is a compiled structural query.
type Selector struct {
	source string
	steps  []step
}

// String returns the source text of the selector.
func (s *Selector) String() string {
	return s.source
}

var selectorCache sync.Map

// Compile parses a structural query.
func Compile(query string) (*Selector, error) {
	if cached, ok := selectorCache.Load(query); ok {
		return cached.(*Selector), nil
	}

	tokens, err := tokenize(query)
	if err != nil {
		return nil, err
	}

	sel := &Selector{source: query}
	pending := combNone

	for _, tok := range tokens {
		if tok == ">" || tok == "+" || tok == " " {
			if len(sel.steps) == 0 || pending != combNone && pending != combDescendant {
				return nil, fmt.Errorf("%w: misplaced combinator in %q", ErrInvalidSelector, query)
			}

			if tok == " " && pending != combNone {
				continue
			}

			pending = combinator(tok[0])

			continue
		}

		comp, err := parseCompound(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSelector, query, err)
		}

		if len(sel.steps) > 0 && pending == combNone {
			pending = combDescendant
		}

		sel.steps = append(sel.steps, step{comp: comp, comb: pending})
		pending = combNone
	}

	if len(sel.steps) == 0 || (pending != combNone && pending != combDescendant) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSelector, query)
	}

	selectorCache.Store(query, sel)

	return sel, nil
}

// tokenize splits a query into compounds and combinators. Runs of spaces
// become a single " " token; spaces around '>' and '+' are dropped.
func tokenize(query string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inAttr  bool
	)

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range strings.TrimSpace(query) {
		switch {
		case inAttr:
			current.WriteRune(r)

			if r == ']' {
				inAttr = false
			}
		case r == '[':
			inAttr = true

			current.WriteRune(r)
		case r == '>' || r == '+':
			flush()

			if n := len(tokens); n > 0 && tokens[n-1] == " " {
				tokens = tokens[:n-1]
			}

			tokens = append(tokens, string(r))
		case r == ' ' || r == '\t' || r == '\n':
			flush()

			if n := len(tokens); n > 0 && tokens[n-1] != " " && tokens[n-1] != ">" && tokens[n-1] != "+" {
				tokens = append(tokens, " ")
			}
		default:
			current.WriteRune(r)
		}
	}

	if inAttr {
		return nil, fmt.Errorf("%w: unterminated attribute in %q", ErrInvalidSelector, query)
	}

	flush()

	return tokens, nil
}

// parseCompound parses "tag#id.class[attr=val]" in any order after the tag.
func parseCompound(tok string) (compound, error) {
	var c compound

	if i := strings.IndexByte(tok, '['); i >= 0 {
		attr := strings.TrimSuffix(tok[i+1:], "]")
		tok = tok[:i]
		c.hasAttr = true

		if eq := strings.IndexByte(attr, '='); eq >= 0 {
			c.attrKey = strings.TrimSpace(attr[:eq])
			c.attrVal = strings.Trim(strings.TrimSpace(attr[eq+1:]), `"'`)
		} else {
			c.attrKey = strings.TrimSpace(attr)
		}

		if c.attrKey == "" {
			return c, errors.New("empty attribute name")
		}
	}

	end := strings.IndexAny(tok, "#.")
	if end < 0 {
		end = len(tok)
	}

	c.tag = strings.ToLower(tok[:end])
	rest := tok[end:]

	for rest != "" {
		kind := rest[0]
		rest = rest[1:]

		next := strings.IndexAny(rest, "#.")
		if next < 0 {
			next = len(rest)
		}

		name := rest[:next]
		rest = rest[next:]

		if name == "" {
			return c, fmt.Errorf("empty name after %q", kind)
		}

		if kind == '#' {
			c.id = name
		} else {
			c.classes = append(c.classes, name)
		}
	}

	if c.tag == "" && c.id == "" && len(c.classes) == 0 && !c.hasAttr {
		return c, errors.New("empty compound")
	}

	return c, nil
}

func (c compound) match(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}

	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}

	if c.id != "" && attr(n, "id") != c.id {
		return false
	}

	if len(c.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range c.classes {
			if !slices.Contains(have, want) {
				return false
			}
		}
	}

	if c.hasAttr {
		val, ok := lookupAttr(n, c.attrKey)
		if !ok || (c.attrVal != "" && val != c.attrVal) {
			return false
		}
	}

	return true
}

// Match reports whether n satisfies the whole selector. Ancestors and
// preceding siblings are checked anywhere in the document.
func (s *Selector) Match(n *html.Node) bool {
	return s.matchAt(n, len(s.steps)-1)
}

func (s *Selector) matchAt(n *html.Node, i int) bool {
	if !s.steps[i].comp.match(n) {
		return false
	}

	if i == 0 {
		return true
	}

	switch s.steps[i].comb {
	case combChild:
		return n.Parent != nil && s.matchAt(n.Parent, i-1)
	case combAdjacent:
		prev := prevElement(n)
		return prev != nil && s.matchAt(prev, i-1)
	default:
		for p := n.Parent; p != nil; p = p.Parent {
			if s.matchAt(p, i-1) {
				return true
			}
		}

		return false
	}
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}

	return "", false
}

// Attr returns the value of an attribute, or "".
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}

	return attr(n, key)
}

func prevElement(n *html.Node) *html.Node {
	for p := n.PrevSibling; p != nil; p = p.PrevSibling {
		if p.Type == html.ElementNode {
			return p
		}
	}

	return nil
}

// NextElement returns the next element sibling of n, skipping text and comments.
func NextElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}

	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}

	return nil
}
