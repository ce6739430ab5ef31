package tiss

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/asoliveira/tiss-reconciler/internal/core/domain"
)

var declEncoding = regexp.MustCompile(`(?i)<\?xml[^>]*?encoding\s*=\s*["']([^"']+)["']`)

// Rewriter derives a new document from the original bytes with selected
// guide subtrees spliced out.
type Rewriter struct{}

func NewRewriter() *Rewriter {
	return &Rewriter{}
}

type guideRange struct {
	key        string
	start, end int64
}

// RemoveGuides drops every guide element whose key is in keys, keeping the
// first occurrence of each key. Untouched regions keep their original bytes.
func (r *Rewriter) RemoveGuides(data []byte, keys []string) ([]byte, int, error) {
	if len(keys) == 0 {
		return nil, 0, domain.WrapError(domain.ErrInvalidInput, "rewrite claim", errors.New("no guide keys to remove"))
	}

	utf8Data, err := ensureUTF8(data)
	if err != nil {
		return nil, 0, domain.WrapError(domain.ErrInvalidInput, "rewrite claim", err)
	}

	ranges, err := guideRanges(utf8Data)
	if err != nil {
		return nil, 0, domain.WrapError(domain.ErrInvalidInput, "rewrite claim", err)
	}

	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			wanted[k] = struct{}{}
		}
	}

	var drop []guideRange
	seen := make(map[string]struct{})
	for _, g := range ranges {
		if _, ok := wanted[g.key]; !ok {
			continue
		}
		if _, first := seen[g.key]; !first {
			seen[g.key] = struct{}{}
			continue
		}
		drop = append(drop, g)
	}
	if len(drop) == 0 {
		return utf8Data, 0, nil
	}

	var out bytes.Buffer
	out.Grow(len(utf8Data))
	var cursor int64
	for _, g := range drop {
		start := trimLineStart(utf8Data, g.start)
		out.Write(utf8Data[cursor:start])
		cursor = g.end
	}
	out.Write(utf8Data[cursor:])
	return out.Bytes(), len(drop), nil
}

// guideRanges scans the document and records the byte span and key of every
// guide element. Offsets only line up with the raw bytes when no charset
// conversion happens underneath the decoder, hence the ensureUTF8 pass.
func guideRanges(data []byte) ([]guideRange, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var ranges []guideRange
	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan guides: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || !isGuideElement(se.Name.Local) {
			continue
		}
		key, err := consumeGuide(dec, se.Name.Local)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, guideRange{key: key, start: start, end: dec.InputOffset()})
	}
	return ranges, nil
}

func isGuideElement(local string) bool {
	switch local {
	case "guiaConsulta", "guiaSP-SADT", "recursoGuia":
		return true
	}
	return false
}

// consumeGuide walks one guide subtree to its end tag and applies the same
// key rules as the parser: the provider guide number for consultation and
// SP-SADT guides, the origin guide number (or the operator's) for appeal
// items.
func consumeGuide(dec *xml.Decoder, guide string) (string, error) {
	var primary, fallback string
	var stack []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("scan guide subtree: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) == 0 {
				if primary != "" {
					return primary, nil
				}
				return fallback, nil
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" || len(stack) == 0 {
				continue
			}
			current := stack[len(stack)-1]
			parent := guide
			if len(stack) > 1 {
				parent = stack[len(stack)-2]
			}
			if guide == "recursoGuia" {
				if current == "numeroGuiaOrigem" && primary == "" {
					primary = text
				}
				if current == "numeroGuiaOperadora" && fallback == "" {
					fallback = text
				}
				continue
			}
			if current != "numeroGuiaPrestador" {
				continue
			}
			if parent == "cabecalhoGuia" && primary == "" {
				primary = text
			}
			if fallback == "" {
				fallback = text
			}
		}
	}
}

// trimLineStart walks the removal start backwards over the indentation and
// the preceding line break so a dropped guide does not leave a blank line.
func trimLineStart(data []byte, start int64) int64 {
	for start > 0 && (data[start-1] == ' ' || data[start-1] == '\t') {
		start--
	}
	if start > 0 && data[start-1] == '\n' {
		start--
		if start > 0 && data[start-1] == '\r' {
			start--
		}
	}
	return start
}

// ensureUTF8 converts the document to UTF-8 when its declaration names
// another charset, patching the declaration to match the new bytes.
func ensureUTF8(data []byte) ([]byte, error) {
	loc := declEncoding.FindSubmatchIndex(data)
	if loc == nil {
		return data, nil
	}
	label := string(data[loc[2]:loc[3]])
	if strings.EqualFold(label, "utf-8") {
		return data, nil
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", label, err)
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("convert %q to utf-8: %w", label, err)
	}
	if loc = declEncoding.FindSubmatchIndex(converted); loc != nil {
		patched := make([]byte, 0, len(converted))
		patched = append(patched, converted[:loc[2]]...)
		patched = append(patched, "UTF-8"...)
		patched = append(patched, converted[loc[3]:]...)
		converted = patched
	}
	return converted, nil
}
