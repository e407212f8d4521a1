// Package transcript fetches caption segments for a video and normalises
// the shapes they arrive in.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xhad/vidrag/internal/models"
)

var (
	// ErrNotFound means the video or a caption track for it does not exist.
	ErrNotFound = errors.New("transcript not found")
	// ErrEmpty means captions exist but none has usable text.
	ErrEmpty = errors.New("transcript has no usable captions")
)

// wrapperKeys are object fields known to hold the segment list.
var wrapperKeys = []string{"segments", "snippets", "transcript"}

// Normalize converts a transcript in any known shape into segments:
// []models.TranscriptSegment, a list of maps with text, start|offset and
// duration|dur keys, JSON text of such a list, or an object wrapping it.
// Segments with blank text are dropped.
func Normalize(raw any) ([]models.TranscriptSegment, error) {
	var segs []models.TranscriptSegment

	switch r := raw.(type) {
	case nil:
		return nil, ErrNotFound
	case []models.TranscriptSegment:
		segs = r
	case []map[string]any:
		for _, m := range r {
			seg, err := segmentFromMap(m)
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		}
	case []any:
		for i, item := range r {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("segment %d: unexpected type %T", i, item)
			}
			seg, err := segmentFromMap(m)
			if err != nil {
				return nil, fmt.Errorf("segment %d: %w", i, err)
			}
			segs = append(segs, seg)
		}
	case map[string]any:
		for _, key := range wrapperKeys {
			if inner, ok := r[key]; ok {
				return Normalize(inner)
			}
		}
		return nil, fmt.Errorf("transcript object has none of %v", wrapperKeys)
	case string:
		return normalizeJSON([]byte(r))
	case []byte:
		return normalizeJSON(r)
	case json.RawMessage:
		return normalizeJSON(r)
	default:
		return nil, fmt.Errorf("unsupported transcript shape %T", raw)
	}

	usable := make([]models.TranscriptSegment, 0, len(segs))
	for _, s := range segs {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		usable = append(usable, s)
	}
	if len(usable) == 0 {
		return nil, ErrEmpty
	}
	return usable, nil
}

func normalizeJSON(data []byte) ([]models.TranscriptSegment, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode transcript JSON: %w", err)
	}
	return Normalize(decoded)
}

func segmentFromMap(m map[string]any) (models.TranscriptSegment, error) {
	var seg models.TranscriptSegment

	text, ok := m["text"].(string)
	if !ok && m["text"] != nil {
		return seg, fmt.Errorf("text has type %T", m["text"])
	}
	seg.Text = text

	start, err := firstNumber(m, "start", "offset")
	if err != nil {
		return seg, err
	}
	seg.StartSeconds = start

	duration, err := firstNumber(m, "duration", "dur")
	if err != nil {
		return seg, err
	}
	seg.DurationSeconds = duration

	return seg, nil
}

func firstNumber(m map[string]any, keys ...string) (float64, error) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		case string:
			if strings.TrimSpace(n) == "" {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", key, err)
			}
			return f, nil
		default:
			return 0, fmt.Errorf("%s has type %T", key, v)
		}
	}
	return 0, nil
}
