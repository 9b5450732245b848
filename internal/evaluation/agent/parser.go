package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decoded is the outcome of decoding an agent payload: a value, or the reason there is none.
type Decoded[T any] struct {
	Value  T
	OK     bool
	Reason string
}

// Ok wraps a successfully decoded value.
func Ok[T any](v T) Decoded[T] {
	return Decoded[T]{Value: v, OK: true}
}

// Fail records why no value could be decoded.
func Fail[T any](format string, args ...interface{}) Decoded[T] {
	return Decoded[T]{Reason: fmt.Sprintf(format, args...)}
}

// Ptr returns the value's address, or nil when decoding failed.
func (d Decoded[T]) Ptr() *T {
	if !d.OK {
		return nil
	}
	v := d.Value
	return &v
}

// Decode extracts the first text part of an agent envelope and parses it as T.
// Markdown code fences around the JSON are tolerated. Decode never returns an error;
// malformed input yields a Decoded with OK == false.
func Decode[T any](body string) Decoded[T] {
	text, reason := ExtractText(body)
	if reason != "" {
		return Fail[T]("%s", reason)
	}
	payload := StripFences(text)
	if payload == "" {
		return Fail[T]("text part is empty")
	}
	if payload == "null" {
		return Fail[T]("text part is json null")
	}
	var value T
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return Fail[T]("text part is not valid json: %v", err)
	}
	return Ok(value)
}

// ExtractText returns the first text part carried by the envelope's artifacts,
// or a non-empty reason when there is none.
func ExtractText(body string) (string, string) {
	var resp Response
	if err := resp.unmarshal(body); err != nil {
		return "", fmt.Sprintf("envelope is not valid json: %v", err)
	}
	if resp.Error != nil {
		return "", fmt.Sprintf("agent returned error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == nil {
		return "", "envelope has no result"
	}
	if len(resp.Result.Artifacts) == 0 {
		return "", "envelope has no artifacts"
	}
	for _, artifact := range resp.Result.Artifacts {
		for _, part := range artifact.Parts {
			if part.Kind == "text" {
				return part.Text, ""
			}
		}
	}
	return "", "envelope has no text part"
}

// StripFences removes a leading ```json (any case) or ``` and a trailing ```.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	const fence = "```"
	if strings.HasPrefix(s, fence) {
		s = s[len(fence):]
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, fence) {
		s = s[:len(s)-len(fence)]
	}
	return strings.TrimSpace(s)
}
