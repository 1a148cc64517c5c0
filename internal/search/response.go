package search

import (
	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/evidence"
	"github.com/hyperjump/artatlas/internal/explain"
	"github.com/hyperjump/artatlas/internal/models"
)

// Values of Metadata.PathTaken.
const (
	PathLexicalVector = "lexical+vector"
	PathVectorOnly    = "vector_fallback"
	conceptSuffix     = "+concepts"
)

// Response messages.
const (
	MessageSuccess   = "Search Successful"
	MessageNoResults = "No results found"
)

// Metadata summarizes how a query was answered.
type Metadata struct {
	PathTaken        string `json:"path_taken"`
	ArtworkResults   int    `json:"artwork_results"`
	EssayResults     int    `json:"essay_results"`
	DetectedConcepts int    `json:"detected_concepts"`
	QueryTimeMS      int64  `json:"query_time_ms"`
}

// Response is the result of one search.
type Response struct {
	Query            string                  `json:"query"`
	Message          string                  `json:"message"`
	Metadata         Metadata                `json:"metadata"`
	Results          []*models.RetrievalItem `json:"results"`
	DetectedConcepts []concept.Match         `json:"detected_concepts"`
	Bundles          []evidence.Bundle       `json:"evidence_bundles,omitempty"`
	// Explanation is nil when the graph failed validation.
	Explanation         *explain.Graph `json:"explanation,omitempty"`
	ExplanationWarnings []string       `json:"explanation_warnings,omitempty"`
}

func pathTaken(results []*models.RetrievalItem, rescored bool) string {
	path := PathVectorOnly
	for _, r := range results {
		if !r.Trace.Fallback {
			path = PathLexicalVector
			break
		}
	}
	if rescored {
		path += conceptSuffix
	}
	return path
}
