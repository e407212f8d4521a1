package llm_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/vidrag/pkg/llm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want llm.ErrorKind
	}{
		{"400 API key not valid. Please pass a valid API key.", llm.KindAuth},
		{"error, status code: 401, message: Incorrect API key provided", llm.KindAuth},
		{"PermissionDenied: caller lacks permission", llm.KindAuth},
		{"429 You exceeded your current quota", llm.KindQuota},
		{"rate limit reached for requests", llm.KindQuota},
		{"response was blocked due to SAFETY", llm.KindSafety},
		{"dial tcp 127.0.0.1:11434: connection refused", llm.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := llm.Classify(errors.New(tt.msg))

			var pe *llm.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Contains(t, pe.Message(), tt.msg)
		})
	}
}

func TestClassify_PassThrough(t *testing.T) {
	assert.NoError(t, llm.Classify(nil))

	first := llm.Classify(errors.New("quota exceeded"))
	wrapped := fmt.Errorf("summary failed: %w", first)
	assert.Same(t, wrapped, llm.Classify(wrapped))
	assert.Equal(t, llm.KindQuota, llm.KindOf(wrapped))
}
