package models

// Candidate is a chunk returned by the vector-similarity stage, before
// relevance rescoring. Candidates live only for the duration of one query.
type Candidate struct {
	Payload    ChunkPayload
	Similarity float64
}

// RerankedCandidate pairs a candidate with its second-stage relevance score.
type RerankedCandidate struct {
	Candidate
	Relevance float64
}

// Answer is the terminal result of one ask pipeline run.
type Answer struct {
	Text string `json:"answer"`
	// Sources lists the labels of the passages the context was built from,
	// in selection order, de-duplicated.
	Sources []string `json:"sources"`
	// NoContext is set when the tenant's corpus produced zero candidates and
	// the answer was generated from an explicit empty-corpus context.
	NoContext bool  `json:"no_context,omitempty"`
	QueryTime int64 `json:"query_time_ms"`
}

// IngestResult reports what the ingestion pipeline produced for one document.
// The core does not persist catalog records; the caller stores these values.
type IngestResult struct {
	DocumentID string   `json:"doc_id"`
	Filename   string   `json:"filename"`
	ChunkCount int      `json:"chunks"`
	RecordIDs  []string `json:"-"`
}
