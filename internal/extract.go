package internal

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ExtractStrategy names the step that recovered a JSON object from model output.
type ExtractStrategy string

const (
	StrategyDirect     ExtractStrategy = "direct"
	StrategyFenced     ExtractStrategy = "fenced"
	StrategyObjectScan ExtractStrategy = "object_scan"
	StrategyArrayScan  ExtractStrategy = "array_scan"
)

const (
	extractPreviewLen   = 200
	defaultCategoryName = "Uncategorized"
	codeFence           = "```"
)

// ExtractJSON recovers a JSON object from free-form model output. It tries,
// in order: the whole text, fenced code blocks, then the first balanced {...}
// span and the first balanced [...] span (wrapped as {"categories": [...]}),
// taking the array first when the first object is one of its elements.
func ExtractJSON(content string) (map[string]any, ExtractStrategy, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, "", &ExtractionError{Preview: ""}
	}

	if obj, ok := parseObject(trimmed); ok {
		return obj, StrategyDirect, nil
	}

	if obj, ok := parseFenced(trimmed); ok {
		return obj, StrategyFenced, nil
	}

	arrayFirst := objectInsideArray(trimmed)
	if arrayFirst {
		if obj, ok := scanArray(trimmed); ok {
			return obj, StrategyArrayScan, nil
		}
	}
	if obj, ok := scanObject(trimmed); ok {
		return obj, StrategyObjectScan, nil
	}
	if !arrayFirst {
		if obj, ok := scanArray(trimmed); ok {
			return obj, StrategyArrayScan, nil
		}
	}

	return nil, "", &ExtractionError{Preview: preview(content, extractPreviewLen)}
}

// objectInsideArray reports whether the first { is an element of the first
// balanced [...] span.
func objectInsideArray(s string) bool {
	arr := strings.IndexByte(s, '[')
	obj := strings.IndexByte(s, '{')
	if arr < 0 || obj < 0 || obj < arr {
		return false
	}
	span, ok := balancedSpan(s, '[', ']')
	return ok && obj < arr+len(span)
}

func scanObject(s string) (map[string]any, bool) {
	span, ok := balancedSpan(s, '{', '}')
	if !ok {
		return nil, false
	}
	return parseObject(span)
}

func scanArray(s string) (map[string]any, bool) {
	span, ok := balancedSpan(s, '[', ']')
	if !ok {
		return nil, false
	}
	list, ok := parseArray(span)
	if !ok {
		return nil, false
	}
	return map[string]any{"categories": list}, true
}

// parseFenced tries each ``` block in order, skipping an optional json tag.
func parseFenced(s string) (map[string]any, bool) {
	rest := s
	for {
		open := strings.Index(rest, codeFence)
		if open < 0 {
			return nil, false
		}
		body := rest[open+len(codeFence):]
		end := strings.Index(body, codeFence)
		if end < 0 {
			return nil, false
		}

		inner := strings.TrimSpace(body[:end])
		if len(inner) >= 4 && strings.EqualFold(inner[:4], "json") {
			inner = strings.TrimSpace(inner[4:])
		}
		if obj, ok := parseObject(inner); ok {
			return obj, true
		}
		rest = body[end+len(codeFence):]
	}
}

// balancedSpan returns the substring from the first open delimiter to its
// matching close, ignoring delimiters inside JSON strings. Delimiters and
// quotes are ASCII, so walking bytes never splits a multi-byte code point.
func balancedSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func decodeWhole(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return v, true
}

func parseObject(s string) (map[string]any, bool) {
	v, ok := decodeWhole(s)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func parseArray(s string) ([]any, bool) {
	v, ok := decodeWhole(s)
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	return list, ok
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// DecodeStructuredResult converts an extracted object into a StructuredResult.
// Unknown fields are ignored; message ids may be numbers or numeric strings.
// Text fields are kept as returned so names group by exact match.
func DecodeStructuredResult(obj map[string]any) (*StructuredResult, error) {
	result := &StructuredResult{}
	overall, hasOverall := obj["overall"].(string)
	rawCategories, hasCategories := obj["categories"].([]any)
	if !hasOverall && !hasCategories {
		return nil, &MalformedResponseError{Reason: "object has neither overall nor categories"}
	}
	result.Overall = overall

	for _, raw := range rawCategories {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		cat := Category{Name: defaultCategoryName}
		if name, ok := item["name"].(string); ok && name != "" {
			cat.Name = name
		}
		if summary, ok := item["summary"].(string); ok {
			cat.Summary = summary
		}
		if ids, ok := item["messages"].([]any); ok {
			for _, id := range ids {
				if v, ok := messageID(id); ok {
					cat.MessageIDs = append(cat.MessageIDs, v)
				}
			}
		}
		result.Categories = append(result.Categories, cat)
	}

	return result, nil
}

func messageID(v any) (int64, bool) {
	switch id := v.(type) {
	case json.Number:
		n, err := id.Int64()
		return n, err == nil
	case float64:
		n := int64(id)
		return n, float64(n) == id
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// ParseStructuredResult runs extraction and decoding in one step.
func ParseStructuredResult(content string) (*StructuredResult, ExtractStrategy, error) {
	obj, strategy, err := ExtractJSON(content)
	if err != nil {
		return nil, "", err
	}
	result, err := DecodeStructuredResult(obj)
	if err != nil {
		return nil, strategy, err
	}
	return result, strategy, nil
}
