// Package htmldoc loads markup documents into a navigable tree and exposes
// total lookup primitives: every lookup on a missing node yields the
// caller's default instead of an error.
package htmldoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"eutrials/internal/logger"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// ErrDocumentUnreadable is returned when a source document cannot be read or parsed.
var ErrDocumentUnreadable = errors.New("document unreadable")

// Document is a parsed markup tree plus the document-order index used to
// pair headings with their content blocks.
type Document struct {
	root     *html.Node
	log      *logger.Logger
	order    map[*html.Node]int
	Path     string
	Size     int64
	LoadTime time.Duration
	once     sync.Once
}

// Load reads and parses the document at path. The byte stream is decoded
// using the charset declared by a BOM or meta tag, defaulting to UTF-8.
func Load(path string, log *logger.Logger) (*Document, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentUnreadable, err)
	}

	doc, err := parse(bytes.NewReader(data), log)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDocumentUnreadable, path, err)
	}

	doc.Path = path
	doc.Size = int64(len(data))
	doc.LoadTime = time.Since(start)

	return doc, nil
}

// Parse builds a document from a reader.
func Parse(r io.Reader, log *logger.Logger) (*Document, error) {
	doc, err := parse(r, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentUnreadable, err)
	}

	return doc, nil
}

// ParseString builds a document from an in-memory string.
func ParseString(s string, log *logger.Logger) (*Document, error) {
	return Parse(bytes.NewBufferString(s), log)
}

func parse(r io.Reader, log *logger.Logger) (*Document, error) {
	if log == nil {
		log = logger.Discard()
	}

	decoded, err := charset.NewReader(r, "text/html")
	if err != nil {
		return nil, fmt.Errorf("failed to detect charset: %w", err)
	}

	root, err := html.Parse(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	return &Document{root: root, log: log}, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// All returns a scope covering the whole document.
func (d *Document) All() Scope {
	return In(d.root)
}

// ByID finds the element with the given id attribute.
func (d *Document) ByID(id string) *html.Node {
	n := d.Select(d.All(), "#"+id)
	if n == nil {
		d.log.Debug("element not found", "id", id)
	}

	return n
}

// position returns the preorder index of n, building the index on first use.
func (d *Document) position(n *html.Node) int {
	d.once.Do(func() {
		d.order = make(map[*html.Node]int)
		i := 0

		var walk func(*html.Node)
		walk = func(n *html.Node) {
			d.order[n] = i
			i++

			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(d.root)
	})

	pos, ok := d.order[n]
	if !ok {
		return -1
	}

	return pos
}
