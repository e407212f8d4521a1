package rag

import "fmt"

const (
	SummaryShort    = "short"
	SummaryDetailed = "detailed"
)

func summaryPrompt(kind, transcript string) string {
	switch kind {
	case SummaryShort:
		return fmt.Sprintf(`Task: Generate a summary of the provided video transcript in EXACTLY 10 numbered points.

Instructions:
1. Format as a strict numbered list (1., 2., 3., ...).
2. Each point must be concise but comprehensive.
3. STRICTLY use only the information from the transcript. Do not add outside knowledge or hallucinate.
4. Focus on the most important takeaways.

Transcript:
%s
`, transcript)
	case SummaryDetailed:
		return fmt.Sprintf(`Task: Provide a detailed, comprehensive summary of the video transcript in a structured, professional format (similar to IEEE/technical report style).

Instructions:
1. Use Numbered Headings for main sections (e.g., "1. Introduction", "2. Key Concept", "3. Conclusion").
2. Use Bullet Points under each heading to detail specific facts, arguments, and examples.
3. Be thorough: capture all technical details and nuances.
4. STRICTLY use only the information from the transcript. Do not hallucinate.

Transcript:
%s
`, transcript)
	default:
		return fmt.Sprintf("Summarize this video transcript:\n\n%s", transcript)
	}
}

func qaPrompt(contextText, question string) string {
	return fmt.Sprintf(`You are a helpful assistant answering questions about a video based on its transcript.

CONTEXT:
%s

QUESTION:
%s

INSTRUCTIONS:
- Answer the question using ONLY the provided context.
- If the answer is not in the context, say "I don't have enough information in this part of the video to answer that."
- Be concise and helpful.
- Use natural language, not bullet points unless listing items.
`, contextText, question)
}

func insightsPrompt(transcript string) string {
	return fmt.Sprintf(`Generate 5 interesting questions that a user might want to ask about this video, and 3 key insights.
Format the output as a simple HTML string with:
<h3>Suggested Questions</h3><ul>...</ul>
<h3>Key Insights</h3><ul>...</ul>

Use only information from this transcript:

%s
`, transcript)
}
