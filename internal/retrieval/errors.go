// Package retrieval implements the two-stage query pipeline.
package retrieval

import "fmt"

// Stage identifies where a query is in the pipeline. Stages advance in
// order; Failed is terminal alongside Assembled.
type Stage string

const (
	StageReceived          Stage = "RECEIVED"
	StageEmbedded          Stage = "EMBEDDED"
	StageCandidatesFetched Stage = "CANDIDATES_FETCHED"
	StageReranked          Stage = "RERANKED"
	StageSelected          Stage = "SELECTED"
	StageAssembled         Stage = "ASSEMBLED"
	// StageGenerated marks the answer-generation call after assembly; it only
	// appears in UpstreamError, never as a pipeline state.
	StageGenerated Stage = "GENERATED"
	StageFailed    Stage = "FAILED"
)

// ValidationError reports a malformed request. It is the caller's fault and
// maps to a 4xx response.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// UpstreamError reports a dependency failure (embedding service, vector
// index, reranker, generator) at a specific stage.
type UpstreamError struct {
	Stage    Stage
	TenantID string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("stage %s failed for tenant %s: %v", e.Stage, e.TenantID, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsolationError reports a record from another tenant in a query's candidate
// set. It is always fatal for the query: isolation violations are surfaced,
// never silently filtered out.
type IsolationError struct {
	QueryTenant  string
	RecordTenant string
	DocumentID   string
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("tenant isolation violation: query for tenant %s received record of tenant %s (document %s)",
		e.QueryTenant, e.RecordTenant, e.DocumentID)
}
