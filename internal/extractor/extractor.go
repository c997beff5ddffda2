// Package extractor finds async result URLs inside JSON response documents.
//
// Matching is by substring containment of the marker segment in any string of
// the document, keys included, so that unknown response shapes still work.
package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxEmbedDepth bounds recursion into JSON documents stored as string values
const maxEmbedDepth = 4

// Extract returns every string in the JSON document data that contains
// "/marker/", in document order. Duplicates are kept. Invalid JSON yields an
// empty result.
func Extract(data []byte, marker string) []string {
	if marker == "" {
		return nil
	}
	needle := "/" + marker + "/"
	if !bytes.Contains(data, []byte(needle)) {
		return nil
	}

	matches, err := walk(data, needle, 0)
	if err != nil {
		return nil
	}
	return matches
}

// ExtractFile reads path and runs Extract on its contents
func ExtractFile(path, marker string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return Extract(data, marker), nil
}

// Unique removes duplicates, keeping the first occurrence
func Unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// walk streams the JSON tokens so that document order is preserved
func walk(data []byte, needle string, depth int) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var matches []string
	nesting := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			// Token reports a plain EOF even inside an unclosed value
			if nesting != 0 {
				return nil, io.ErrUnexpectedEOF
			}
			break
		}
		if err != nil {
			return nil, err
		}

		switch v := tok.(type) {
		case json.Delim:
			if v == '{' || v == '[' {
				nesting++
			} else {
				nesting--
			}
		case string:
			if strings.Contains(v, needle) {
				matches = append(matches, matchString(v, needle, depth)...)
			}
		}
	}
	return matches, nil
}

// matchString handles one string token that contains the needle. Whole JSON
// documents stored as text are walked recursively, everything else is split
// into whitespace separated fields.
func matchString(s, needle string, depth int) []string {
	trimmed := strings.TrimSpace(s)
	if depth < maxEmbedDepth && looksLikeJSON(trimmed) {
		if nested, err := walk([]byte(trimmed), needle, depth+1); err == nil {
			return nested
		}
	}

	var out []string
	for _, field := range strings.Fields(s) {
		if !strings.Contains(field, needle) {
			continue
		}
		if cleaned := Clean(field); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

func looksLikeJSON(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}

var (
	trailingChars = []string{",", ".", ")", "}", "]", "\"", "'", ">", ";"}
	leadingChars  = []string{"(", "[", "<", "\"", "'"}
)

// Clean strips quotes, whitespace and punctuation that surround a URL
func Clean(raw string) string {
	cleaned := strings.TrimSpace(raw)

	// Repeat until stable so stacked artifacts like `"url",` are all removed
	for {
		before := cleaned
		for _, char := range trailingChars {
			cleaned = strings.TrimSuffix(cleaned, char)
		}
		for _, char := range leadingChars {
			cleaned = strings.TrimPrefix(cleaned, char)
		}
		cleaned = strings.TrimSpace(cleaned)
		if cleaned == before {
			break
		}
	}

	return cleaned
}
