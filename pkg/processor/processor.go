package processor

import (
	"strings"
	"unicode"

	"github.com/xhad/vidrag/internal/models"
)

type ProcessorConfig struct {
	ChunkSize       int
	CustomStopwords []string
}

type Processor struct {
	config    ProcessorConfig
	stopwords map[string]struct{}
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}

	stopwords := make(map[string]struct{})
	for _, w := range getStopwords() {
		stopwords[w] = struct{}{}
	}
	for _, w := range config.CustomStopwords {
		stopwords[strings.ToLower(w)] = struct{}{}
	}

	return Processor{
		config:    config,
		stopwords: stopwords,
	}
}

func (p Processor) ChunkSize() int {
	return p.config.ChunkSize
}

// Chunk splits segments with the configured chunk size.
func (p Processor) Chunk(segments []models.TranscriptSegment) []models.Chunk {
	return ChunkSegments(segments, p.config.ChunkSize)
}

// ChunkSegments accumulates segment texts until the running length exceeds
// maxChars. The segment that crosses the limit stays in the chunk it crossed.
func ChunkSegments(segments []models.TranscriptSegment, maxChars int) []models.Chunk {
	chunks := make([]models.Chunk, 0)

	var current strings.Builder
	var currentStart float64

	for _, seg := range segments {
		if current.Len() == 0 {
			currentStart = seg.StartSeconds
		}

		current.WriteString(" ")
		current.WriteString(seg.Text)

		if current.Len() > maxChars {
			chunks = append(chunks, models.Chunk{
				Text:         strings.TrimSpace(current.String()),
				StartSeconds: currentStart,
			})
			current.Reset()
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, models.Chunk{
			Text:         strings.TrimSpace(current.String()),
			StartSeconds: currentStart,
		})
	}

	return chunks
}

// Tokenize lower-cases text and returns its terms of two or more letters or
// digits, skipping stopwords.
func (p Processor) Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := p.stopwords[f]; stop {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// SplitSentences returns byte offsets of sentences in text. A sentence ends at
// '.', '!' or '?' followed by whitespace or the end of the text.
func SplitSentences(text string) []Sentence {
	var sentences []Sentence

	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\n' && text[i+1] != '\t' {
			continue
		}
		if s, ok := trimSpan(text, start, i+1); ok {
			sentences = append(sentences, s)
		}
		start = i + 1
	}

	if s, ok := trimSpan(text, start, len(text)); ok {
		sentences = append(sentences, s)
	}

	return sentences
}

// Sentence is a half-open byte range [Start, End) into the source text.
type Sentence struct {
	Start int
	End   int
}

func (s Sentence) Text(source string) string {
	return source[s.Start:s.End]
}

func trimSpan(text string, start, end int) (Sentence, bool) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return Sentence{Start: start, End: end}, end > start
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

// Common English stopwords
func getStopwords() []string {
	return []string{
		"a", "about", "above", "after", "again", "against", "all", "also", "am", "an",
		"and", "any", "are", "as", "at", "be", "because", "been", "before", "being",
		"below", "between", "both", "but", "by", "can", "could", "did", "do", "does",
		"doing", "down", "during", "each", "either", "else", "ever", "every", "few", "for",
		"from", "further", "had", "has", "have", "having", "he", "her", "here", "hers",
		"herself", "him", "himself", "his", "how", "however", "i", "if", "in", "into",
		"is", "it", "its", "itself", "just", "least", "less", "many", "may", "me",
		"might", "more", "most", "much", "must", "my", "myself", "neither", "no", "nor",
		"not", "now", "of", "off", "often", "on", "once", "only", "or", "other",
		"our", "ours", "ourselves", "out", "over", "own", "per", "rather", "same", "she",
		"should", "since", "so", "some", "still", "such", "than", "that", "the", "their",
		"theirs", "them", "themselves", "then", "there", "these", "they", "this", "those", "though",
		"through", "thus", "to", "too", "under", "until", "up", "upon", "us", "very",
		"was", "we", "well", "were", "what", "when", "where", "whether", "which", "while",
		"who", "whom", "whose", "why", "will", "with", "within", "without", "would", "yet",
		"you", "your", "yours", "yourself", "yourselves",
	}
}
