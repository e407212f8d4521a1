package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xhad/vidrag/internal/types"
)

// HTTPAnalyzer calls an external NER service that accepts {"text": ...} and
// answers with {"entities": [...], "sentences": [...]}. The service counts
// offsets in code points; Analyze converts them to byte offsets.
type HTTPAnalyzer struct {
	url    string
	client *http.Client
}

func NewHTTPAnalyzer(url string, timeout time.Duration) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPAnalyzer{url: url, client: &http.Client{Timeout: timeout}}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, text string) (types.NERDocument, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return types.NERDocument{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return types.NERDocument{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return types.NERDocument{}, fmt.Errorf("failed to call NER service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NERDocument{}, fmt.Errorf("NER service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var doc types.NERDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return types.NERDocument{}, fmt.Errorf("failed to decode NER response: %w", err)
	}

	offsets := byteOffsets(text)
	for i := range doc.Entities {
		doc.Entities[i].Start = offsets.at(doc.Entities[i].Start)
		doc.Entities[i].End = offsets.at(doc.Entities[i].End)
	}
	for i := range doc.Sentences {
		doc.Sentences[i].Start = offsets.at(doc.Sentences[i].Start)
		doc.Sentences[i].End = offsets.at(doc.Sentences[i].End)
	}
	return doc, nil
}

// runeIndex maps a code point offset to its byte offset.
type runeIndex []int

func byteOffsets(text string) runeIndex {
	idx := make(runeIndex, 0, len(text)+1)
	for i := range text {
		idx = append(idx, i)
	}
	return append(idx, len(text))
}

// at returns -1 for offsets outside the text so the span is rejected later.
func (r runeIndex) at(pos int) int {
	if pos < 0 || pos >= len(r) {
		return -1
	}
	return r[pos]
}
