// Package explain assembles and validates the explanation graph that links a query to
// its detected concepts, their evidence bundles, and the supporting items.
package explain

import (
	"encoding/json"
	"strconv"

	"github.com/hyperjump/artatlas/internal/models"
)

// NodeType is the kind of a graph node.
type NodeType string

const (
	NodeQuery   NodeType = "query"
	NodeConcept NodeType = "concept"
	NodeBundle  NodeType = "bundle"
	NodeArtwork NodeType = "artwork"
	NodeEssay   NodeType = "essay"
)

// EdgeType is the relationship an edge expresses.
type EdgeType string

const (
	EdgeQuerySupportsConcept     EdgeType = "query_supports_concept"
	EdgeConceptFormsBundle       EdgeType = "concept_forms_bundle"
	EdgeBundleSupportedByArtwork EdgeType = "bundle_supported_by_artwork"
	EdgeBundleSupportedByEssay   EdgeType = "bundle_supported_by_essay"
)

// Provenance values accepted on edges when provenance is strict.
const (
	ProvenanceDetectedConcepts    = "v2_detected_concepts"
	ProvenanceBundleConstruction  = "bundle_construction"
	ProvenanceEmbeddingSimilarity = "embedding_similarity"
)

// Node is one of QueryNode, ConceptNode, BundleNode or ItemNode.
type Node interface {
	ID() string
	Type() NodeType
	// RefID is the external identifier the node stands for, empty for the query node.
	RefID() string
	node()
}

// QueryNode is the root of the graph.
type QueryNode struct {
	NodeID string
	Label  string
}

func (n *QueryNode) ID() string     { return n.NodeID }
func (n *QueryNode) Type() NodeType { return NodeQuery }
func (n *QueryNode) RefID() string  { return "" }
func (*QueryNode) node()            {}

// ConceptNode is a detected concept.
type ConceptNode struct {
	NodeID    string
	ConceptID int64
	Label     string
}

func (n *ConceptNode) ID() string     { return n.NodeID }
func (n *ConceptNode) Type() NodeType { return NodeConcept }
func (n *ConceptNode) RefID() string  { return strconv.FormatInt(n.ConceptID, 10) }
func (*ConceptNode) node()            {}

// BundleNode is an evidence bundle; Confidence is its evidence confidence.
type BundleNode struct {
	NodeID     string
	EvidenceID string
	Confidence float64
}

func (n *BundleNode) ID() string     { return n.NodeID }
func (n *BundleNode) Type() NodeType { return NodeBundle }
func (n *BundleNode) RefID() string  { return n.EvidenceID }
func (*BundleNode) node()            {}

// ItemNode is an artwork or essay cited by a bundle.
type ItemNode struct {
	NodeID string
	Kind   models.Corpus
	ItemID int64
}

func (n *ItemNode) ID() string    { return n.NodeID }
func (n *ItemNode) RefID() string { return strconv.FormatInt(n.ItemID, 10) }
func (*ItemNode) node()           {}

// Type maps the item kind to its node type.
func (n *ItemNode) Type() NodeType {
	switch n.Kind {
	case models.CorpusArtwork:
		return NodeArtwork
	case models.CorpusEssay:
		return NodeEssay
	}
	return NodeType(n.Kind)
}

// Edge is a typed, weighted link between two nodes.
type Edge struct {
	From       string   `json:"from_node"`
	To         string   `json:"to_node"`
	Type       EdgeType `json:"edge_type"`
	Confidence float64  `json:"confidence"`
	Provenance string   `json:"provenance"`
}

// Graph is an explanation graph. Node order is insertion order.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Node returns the first node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID() == id {
			return n, true
		}
	}
	return nil, false
}

// Count returns how many nodes of type t the graph holds.
func (g *Graph) Count(t NodeType) int {
	c := 0
	for _, n := range g.Nodes {
		if n.Type() == t {
			c++
		}
	}
	return c
}

type nodeJSON struct {
	NodeID     string   `json:"node_id"`
	NodeType   NodeType `json:"node_type"`
	RefID      *string  `json:"ref_id"`
	Label      string   `json:"label,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// MarshalJSON encodes the graph as {"nodes": [...], "edges": [...]}.
func (g *Graph) MarshalJSON() ([]byte, error) {
	nodes := make([]nodeJSON, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nj := nodeJSON{NodeID: n.ID(), NodeType: n.Type()}
		if ref := n.RefID(); ref != "" {
			nj.RefID = &ref
		}
		switch v := n.(type) {
		case *QueryNode:
			nj.Label = v.Label
		case *ConceptNode:
			nj.Label = v.Label
		case *BundleNode:
			c := v.Confidence
			nj.Confidence = &c
		}
		nodes = append(nodes, nj)
	}
	edges := g.Edges
	if edges == nil {
		edges = []Edge{}
	}
	return json.Marshal(struct {
		Nodes []nodeJSON `json:"nodes"`
		Edges []Edge     `json:"edges"`
	}{nodes, edges})
}
