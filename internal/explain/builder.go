package explain

import (
	"fmt"
	"strconv"

	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/evidence"
	"github.com/hyperjump/artatlas/internal/models"
)

// QueryNodeID is the ID of the single query node.
const QueryNodeID = "q:0"

// ConceptNodeID returns the node ID of a concept.
func ConceptNodeID(conceptID int64) string { return "c:" + strconv.FormatInt(conceptID, 10) }

// BundleNodeID returns the node ID of an evidence bundle.
func BundleNodeID(evidenceID string) string { return "b:" + evidenceID }

// ItemNodeID returns the node ID of an artwork ("a:") or essay ("e:").
func ItemNodeID(kind models.Corpus, itemID int64) string {
	prefix := "a:"
	if kind == models.CorpusEssay {
		prefix = "e:"
	}
	return prefix + strconv.FormatInt(itemID, 10)
}

// Build assembles the graph query -> concept -> bundle -> item for the given bundles.
// Every bundle's concept must be among the detected concepts.
func Build(query string, detected []concept.Match, bundles []evidence.Bundle) (*Graph, error) {
	byConcept := make(map[int64]concept.Match, len(detected))
	for _, m := range detected {
		byConcept[m.ConceptID] = m
	}

	g := &Graph{Nodes: []Node{&QueryNode{NodeID: QueryNodeID, Label: query}}}
	seen := map[string]bool{QueryNodeID: true}
	add := func(n Node) {
		if !seen[n.ID()] {
			seen[n.ID()] = true
			g.Nodes = append(g.Nodes, n)
		}
	}

	for _, b := range bundles {
		m, ok := byConcept[b.PrimaryConcept]
		if !ok {
			return nil, fmt.Errorf("bundle %s cites concept %d which was not detected", b.EvidenceID, b.PrimaryConcept)
		}
		conceptID := ConceptNodeID(b.PrimaryConcept)
		bundleID := BundleNodeID(b.EvidenceID)
		label := m.ConceptName
		if label == "" {
			label = b.ConceptName
		}

		add(&ConceptNode{NodeID: conceptID, ConceptID: b.PrimaryConcept, Label: label})
		add(&BundleNode{NodeID: bundleID, EvidenceID: b.EvidenceID, Confidence: b.EvidenceConfidence})

		g.Edges = append(g.Edges,
			Edge{
				From:       QueryNodeID,
				To:         conceptID,
				Type:       EdgeQuerySupportsConcept,
				Confidence: m.ConfidenceScore,
				Provenance: ProvenanceDetectedConcepts,
			},
			Edge{
				From:       conceptID,
				To:         bundleID,
				Type:       EdgeConceptFormsBundle,
				Confidence: 1.0,
				Provenance: ProvenanceBundleConstruction,
			},
		)

		for _, item := range b.Members() {
			itemID := ItemNodeID(item.Corpus, item.ItemID)
			add(&ItemNode{NodeID: itemID, Kind: item.Corpus, ItemID: item.ItemID})
			et := EdgeBundleSupportedByArtwork
			if item.Corpus == models.CorpusEssay {
				et = EdgeBundleSupportedByEssay
			}
			g.Edges = append(g.Edges, Edge{
				From:       bundleID,
				To:         itemID,
				Type:       et,
				Confidence: item.MappingConfidence,
				Provenance: item.Provenance,
			})
		}
	}
	return g, nil
}
