package tiss

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Namespace is the ANS schema namespace every TISS element lives in.
const Namespace = "http://www.ans.gov.br/padroes/tiss/schemas"

// element is a minimal in-memory XML node. Only names, child order and
// character data matter to the extractor; attributes are ignored.
type element struct {
	name     xml.Name
	children []*element
	chardata []byte
}

func (e *element) is(local string) bool {
	return e.name.Local == local && e.name.Space == Namespace
}

func (e *element) text() string {
	return strings.TrimSpace(string(e.chardata))
}

// child returns the first direct child with the given local name.
func (e *element) child(local string) *element {
	for _, c := range e.children {
		if c.is(local) {
			return c
		}
	}
	return nil
}

// path walks a direct-child chain and returns the first full match.
func (e *element) path(locals ...string) *element {
	cur := e
	for _, local := range locals {
		cur = cur.child(local)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// pathAll walks a direct-child chain level by level, collecting every
// element the full chain reaches in document order.
func (e *element) pathAll(locals ...string) []*element {
	cur := []*element{e}
	for _, local := range locals {
		var next []*element
		for _, el := range cur {
			for _, c := range el.children {
				if c.is(local) {
					next = append(next, c)
				}
			}
		}
		cur = next
		if len(cur) == 0 {
			return nil
		}
	}
	return cur
}

func (e *element) collectDescendants(local string, out []*element) []*element {
	for _, c := range e.children {
		if c.is(local) {
			out = append(out, c)
		}
		out = c.collectDescendants(local, out)
	}
	return out
}

// deep locates the first element matching a descendant step followed by a
// direct-child chain, mirroring the .//a/b/c lookups the TISS layouts need.
func (e *element) deep(locals ...string) *element {
	if len(locals) == 0 {
		return nil
	}
	for _, base := range e.collectDescendants(locals[0], nil) {
		if found := base.path(locals[1:]...); found != nil {
			return found
		}
	}
	return nil
}

// deepAll is the all-matches form of deep, in document order.
func (e *element) deepAll(locals ...string) []*element {
	if len(locals) == 0 {
		return nil
	}
	var out []*element
	for _, base := range e.collectDescendants(locals[0], nil) {
		if len(locals) == 1 {
			out = append(out, base)
			continue
		}
		out = append(out, base.pathAll(locals[1:]...)...)
	}
	return out
}

func (e *element) pathText(locals ...string) string {
	if found := e.path(locals...); found != nil {
		return found.text()
	}
	return ""
}

func (e *element) deepText(locals ...string) string {
	if found := e.deep(locals...); found != nil {
		return found.text()
	}
	return ""
}

func newDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	// TISS files routinely declare ISO-8859-1.
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// parseTree decodes the whole document into an element tree rooted at the
// document element.
func parseTree(data []byte) (*element, error) {
	dec := newDecoder(data)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("document has no root element")
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return buildElement(dec, start)
		}
	}
}

// buildElement consumes tokens up to the end tag matching start and returns
// the assembled subtree.
func buildElement(dec *xml.Decoder, start xml.StartElement) (*element, error) {
	el := &element{name: start.Name}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := buildElement(dec, t)
			if err != nil {
				return nil, err
			}
			el.children = append(el.children, child)
		case xml.EndElement:
			return el, nil
		case xml.CharData:
			el.chardata = append(el.chardata, t...)
		}
	}
}
