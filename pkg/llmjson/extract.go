// Package llmjson salvages JSON values from free-text model output.
//
// Generative models are asked for JSON but routinely wrap it in prose or
// markdown code fences. ExtractArray finds the first well-formed array in
// such text without attempting to repair malformed JSON.
package llmjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrNoArray is returned when the text contains no well-formed JSON array.
var ErrNoArray = errors.New("no json array found")

const snippetLen = 120

// ParseError describes why a model response could not be decoded.
type ParseError struct {
	Reason  string
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("llmjson: %s (near %q)", e.Reason, e.Snippet)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractArray returns the raw bytes of the first well-formed JSON array in text.
// Each '[' is tried in order; the first one that decodes as a complete array wins.
func ExtractArray(text string) (json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Reason: "empty response", Err: ErrNoArray}
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		if len(raw) > 0 && raw[0] == '[' {
			return raw, nil
		}
	}

	return nil, &ParseError{Reason: "no well-formed array", Snippet: snippet(text), Err: ErrNoArray}
}

// DecodeArray extracts the first JSON array in text and decodes its elements
// one by one. Elements that fail to decode into T are skipped, so one bad
// entry never discards the rest of the answer.
func DecodeArray[T any](text string) ([]T, error) {
	raw, err := ExtractArray(text)
	if err != nil {
		return nil, err
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, &ParseError{Reason: "array elements", Snippet: snippet(string(raw)), Err: err}
	}

	out := make([]T, 0, len(elems))
	for _, e := range elems {
		if bytes.Equal(bytes.TrimSpace(e), []byte("null")) {
			continue
		}
		var v T
		if err := json.Unmarshal(e, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// snippet trims s to at most snippetLen bytes without splitting a rune.
func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= snippetLen {
		return s
	}
	n := snippetLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
