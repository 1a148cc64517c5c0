// Package evidence groups the items that support each detected concept into bundles.
package evidence

import "github.com/hyperjump/artatlas/internal/models"

// ProvenanceEmbeddingSimilarity marks evidence derived from item-to-prototype cosine similarity.
const ProvenanceEmbeddingSimilarity = "embedding_similarity"

// JustificationType names how an item supports a concept.
type JustificationType string

const (
	ArtworkSupportsConcept JustificationType = "artwork_supports_concept"
	EssaySupportsConcept   JustificationType = "essay_supports_concept"
)

// ItemEvidence is one item's support for one concept.
type ItemEvidence struct {
	ItemID            int64         `json:"item_id"`
	Corpus            models.Corpus `json:"type"`
	MappingConfidence float64       `json:"mapping_confidence"`
	Provenance        string        `json:"provenance"`
}

// Justification records why an item was bundled.
type Justification struct {
	Type       JustificationType `json:"justification_type"`
	SourceID   int64             `json:"source_id"`
	Confidence float64           `json:"confidence"`
	Provenance string            `json:"provenance"`
}

// Bundle is the evidence substantiating one detected concept. It always holds at
// least one artwork; essays are attached only alongside artwork evidence.
type Bundle struct {
	EvidenceID         string          `json:"evidence_id"`
	PrimaryConcept     int64           `json:"primary_concept"`
	ConceptName        string          `json:"concept_name,omitempty"`
	Artworks           []ItemEvidence  `json:"bundled_artworks"`
	Essays             []ItemEvidence  `json:"bundled_essays,omitempty"`
	EvidenceConfidence float64         `json:"evidence_confidence"`
	Justifications     []Justification `json:"justification_edges"`
}

// Members returns the artwork evidence followed by the essay evidence.
func (b *Bundle) Members() []ItemEvidence {
	out := make([]ItemEvidence, 0, len(b.Artworks)+len(b.Essays))
	out = append(out, b.Artworks...)
	return append(out, b.Essays...)
}

// Mean returns the arithmetic mean of the members' mapping confidences, 0 for none.
func Mean(members []ItemEvidence) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, m := range members {
		sum += m.MappingConfidence
	}
	return sum / float64(len(members))
}
