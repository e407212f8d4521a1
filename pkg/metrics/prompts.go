package metrics

import (
	"fmt"
	"strings"

	"github.com/xhad/vidrag/internal/models"
)

func coherencePrompt(answer string) string {
	return fmt.Sprintf(`Rate the coherence of the following text on a scale from 1 to 5.
1 = Incoherent, confusing, or nonsensical.
5 = Perfectly clear, logical, and easy to understand.

Text:
"%s"

Respond ONLY with the number (1, 2, 3, 4, or 5).`, answer)
}

func correctnessPrompt(answer, groundTruth string) string {
	return fmt.Sprintf(`Compare the AI Answer to the Ground Truth.
Rate accuracy on a scale from 1 to 5.
1 = Completely wrong.
5 = Captures the meaning of the Ground Truth perfectly.

Ground Truth: "%s"
AI Answer: "%s"

Respond ONLY with the number (1-5).`, groundTruth, answer)
}

func retrievalPrompt(question string, chunks []models.RetrievedChunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&sb, "Chunk %d: %s\n\n", i+1, c.Text)
	}

	return fmt.Sprintf(`Analyze the retrieved chunks for the question: "%s"

For each Chunk (1 to %d), determine if it contains relevant information to answer the question.
Also determine if ALL chunks together provide SUFFICIENT info to answer the question.

Respond as a JSON object with this EXACT structure:
{
  "relevant_chunks": [1, 3],
  "sufficient": true
}
"relevant_chunks" lists the 1-based indices of the relevant chunks.

Chunks:
%s`, question, len(chunks), sb.String())
}
