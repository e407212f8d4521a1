package models

import "time"

// TranscriptSegment is one caption line as delivered by a transcript source.
type TranscriptSegment struct {
	Text            string  `json:"text"`
	StartSeconds    float64 `json:"start"`
	DurationSeconds float64 `json:"duration"`
}

// Chunk is a bounded slice of transcript text tagged with the start time of
// its first segment.
type Chunk struct {
	Text         string  `json:"text"`
	StartSeconds float64 `json:"start"`
}

type RetrievedChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// EvaluationResult holds the quality signal computed for one answer.
// Correctness is nil when no reference answer was supplied.
type EvaluationResult struct {
	Faithfulness       float64  `json:"faithfulness"`
	AnswerRelevance    float64  `json:"answer_relevance"`
	Coherence          float64  `json:"coherence"`
	Correctness        *float64 `json:"correctness"`
	ContextPrecision   float64  `json:"context_precision"`
	ContextRecallProxy float64  `json:"context_recall_proxy"`
	MRR                float64  `json:"mrr"`
	LatencySeconds     float64  `json:"latency"`
	RetrievalScore     float64  `json:"retrieval_score"`
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the job will not change again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type Job struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	Kind      string    `json:"type"`
	Status    JobStatus `json:"status"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entity is one named entity found in a transcript.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label,omitempty"`
	Start int    `json:"start,omitempty"`
	End   int    `json:"end,omitempty"`
}

type TimelineEntry struct {
	Date     string `json:"date"`
	Context  string `json:"context"`
	Position int    `json:"position,omitempty"`
}

type Mention struct {
	Name     string `json:"name"`
	Mentions int    `json:"mentions"`
}

type KeyFacts struct {
	PeopleMentioned  int       `json:"people_mentioned"`
	Organizations    int       `json:"organizations"`
	Locations        int       `json:"locations"`
	DatesMentioned   int       `json:"dates_mentioned"`
	NumbersMentioned int       `json:"numbers_mentioned,omitempty"`
	QuestionsAsked   int       `json:"questions_asked,omitempty"`
	SmartInsights    []string  `json:"smart_insights,omitempty"`
	TopPeople        []Mention `json:"top_people"`
	TopOrganizations []Mention `json:"top_organizations"`
	TopLocations     []Mention `json:"top_locations"`
}

type Relationship struct {
	Type    string `json:"type"`
	Entity1 string `json:"entity1"`
	Entity2 string `json:"entity2"`
	Context string `json:"context"`
}

// Extraction is the fixed-schema result of entity/insight extraction.
// When Success is false only Error is meaningful.
type Extraction struct {
	Success       bool                `json:"success"`
	Error         string              `json:"error,omitempty"`
	Entities      map[string][]Entity `json:"entities,omitempty"`
	Timeline      []TimelineEntry     `json:"timeline,omitempty"`
	KeyFacts      *KeyFacts           `json:"key_facts,omitempty"`
	Relationships []Relationship      `json:"relationships,omitempty"`
}

// FailedExtraction builds the structured failure result.
func FailedExtraction(err error) Extraction {
	return Extraction{Success: false, Error: err.Error()}
}
