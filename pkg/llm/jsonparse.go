package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoJSON = errors.New("no JSON object in model output")

// Validator is implemented by decode targets that check required fields.
type Validator interface {
	Validate() error
}

// DecodeJSON decodes model output into v. raw may be already structured data
// (maps, slices, structs), a JSON string, or bytes.
//
// Text is first decoded strictly as a single JSON object. If that fails, one
// recovery is attempted: a surrounding ``` fence is stripped and the span from
// the first '{' to the last '}' is decoded. When v implements Validator its
// Validate must pass for a decode to count.
func DecodeJSON(raw any, v any) error {
	switch r := raw.(type) {
	case nil:
		return ErrNoJSON
	case string:
		return decodeText(r, v)
	case []byte:
		return decodeText(string(r), v)
	case json.RawMessage:
		return decodeText(string(r), v)
	default:
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to re-encode structured output: %w", err)
		}
		return strictDecode(data, v)
	}
}

func decodeText(text string, v any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrNoJSON
	}

	err := strictDecode([]byte(text), v)
	if err == nil {
		return nil
	}

	recovered, ok := ExtractObject(StripFence(text))
	if !ok {
		return fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	if rerr := strictDecode([]byte(recovered), v); rerr != nil {
		return fmt.Errorf("failed to decode recovered JSON: %w", rerr)
	}
	return nil
}

func strictDecode(data []byte, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	if val, ok := v.(Validator); ok {
		return val.Validate()
	}
	return nil
}

// StripFence removes a leading ```lang line and a trailing ``` marker.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.ContainsAny(text[:nl], "{[") {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// ExtractObject returns the text from the first '{' through the last '}'.
func ExtractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
