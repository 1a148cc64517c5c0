package explain

import (
	"fmt"
	"math"
)

var edgeEndpoints = map[EdgeType][2]NodeType{
	EdgeQuerySupportsConcept:     {NodeQuery, NodeConcept},
	EdgeConceptFormsBundle:       {NodeConcept, NodeBundle},
	EdgeBundleSupportedByArtwork: {NodeBundle, NodeArtwork},
	EdgeBundleSupportedByEssay:   {NodeBundle, NodeEssay},
}

var knownProvenance = map[string]bool{
	ProvenanceDetectedConcepts:    true,
	ProvenanceBundleConstruction:  true,
	ProvenanceEmbeddingSimilarity: true,
}

// ValidateOptions tunes Validate.
type ValidateOptions struct {
	// StrictProvenance rejects provenance outside the known set; otherwise it is
	// reported as a warning.
	StrictProvenance  bool
	ConfidenceEpsilon float64
	BundleTolerance   float64
}

// DefaultValidateOptions returns strict provenance with epsilon 1e-6 and bundle tolerance 1e-4.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{StrictProvenance: true, ConfidenceEpsilon: 1e-6, BundleTolerance: 1e-4}
}

// ValidationResult lists the problems found in a graph.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK reports whether the graph has no errors.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func isSupport(t EdgeType) bool {
	return t == EdgeBundleSupportedByArtwork || t == EdgeBundleSupportedByEssay
}

// Validate checks the structural and numeric invariants of g without modifying it.
func Validate(g *Graph, opts ValidateOptions) ValidationResult {
	var res ValidationResult
	if opts.ConfidenceEpsilon <= 0 {
		opts.ConfidenceEpsilon = 1e-6
	}
	if opts.BundleTolerance <= 0 {
		opts.BundleTolerance = 1e-4
	}

	byID := make(map[string]Node, len(g.Nodes))
	order := make([]string, 0, len(g.Nodes))
	queryID := ""
	queries := 0
	for _, n := range g.Nodes {
		id := n.ID()
		if _, dup := byID[id]; dup {
			res.errorf("duplicate node_id %q", id)
			continue
		}
		switch v := n.(type) {
		case *QueryNode:
			queries++
			queryID = id
		case *ConceptNode, *BundleNode:
		case *ItemNode:
			if t := v.Type(); t != NodeArtwork && t != NodeEssay {
				res.errorf("node %q has invalid node_type %q", id, t)
			}
		default:
			res.errorf("node %q has unknown node variant %T", id, n)
		}
		byID[id] = n
		order = append(order, id)
	}
	if queries != 1 {
		res.errorf("graph must contain exactly 1 query node; found %d", queries)
		queryID = ""
	}

	incoming := make(map[string][]Edge, len(byID))
	outgoing := make(map[string][]Edge, len(byID))
	for i, e := range g.Edges {
		endpoints, known := edgeEndpoints[e.Type]
		if !known {
			res.errorf("edge[%d] has invalid edge_type %q", i, e.Type)
		}
		from, ok := byID[e.From]
		if !ok {
			res.errorf("edge[%d] has invalid from_node %q", i, e.From)
			continue
		}
		to, ok := byID[e.To]
		if !ok {
			res.errorf("edge[%d] has invalid to_node %q", i, e.To)
			continue
		}
		incoming[e.To] = append(incoming[e.To], e)
		outgoing[e.From] = append(outgoing[e.From], e)

		if known && (from.Type() != endpoints[0] || to.Type() != endpoints[1]) {
			res.errorf("edge[%d] %q must connect %s->%s, but connects %s->%s (%s->%s)",
				i, e.Type, endpoints[0], endpoints[1], from.Type(), to.Type(), e.From, e.To)
		}

		if math.IsNaN(e.Confidence) || e.Confidence < -opts.ConfidenceEpsilon || e.Confidence > 1+opts.ConfidenceEpsilon {
			res.errorf("edge[%d] %q confidence out of range [0,1]: %v", i, e.Type, e.Confidence)
		}
		if e.Type == EdgeConceptFormsBundle && math.Abs(e.Confidence-1) > opts.ConfidenceEpsilon {
			res.errorf("edge[%d] %q confidence must be 1.0; got %v", i, e.Type, e.Confidence)
		}

		switch {
		case e.Provenance == "":
			res.errorf("edge[%d] %q is missing provenance", i, e.Type)
		case opts.StrictProvenance && !knownProvenance[e.Provenance]:
			res.errorf("edge[%d] provenance %q is not allowed", i, e.Provenance)
		case !knownProvenance[e.Provenance]:
			res.warnf("edge[%d] provenance %q is non-standard", i, e.Provenance)
		}
	}

	for _, id := range order {
		if id != queryID && len(incoming[id]) == 0 && len(outgoing[id]) == 0 {
			res.errorf("orphan node %q (node_type=%s) has no incident edges", id, byID[id].Type())
		}
		switch n := byID[id].(type) {
		case *BundleNode:
			validateBundle(&res, n, incoming[id], outgoing[id], opts.BundleTolerance)
		case *ConceptNode:
			in := countType(incoming[id], EdgeQuerySupportsConcept)
			out := countType(outgoing[id], EdgeConceptFormsBundle)
			if in != 1 {
				res.errorf("concept %q must have exactly 1 incoming %q edge; found %d", id, EdgeQuerySupportsConcept, in)
			}
			if out != 1 {
				res.errorf("concept %q must have exactly 1 outgoing %q edge; found %d", id, EdgeConceptFormsBundle, out)
			}
		case *ItemNode:
			supports := 0
			for _, e := range incoming[id] {
				if isSupport(e.Type) {
					supports++
				}
			}
			if supports < 1 {
				res.errorf("evidence node %q must have at least 1 incoming support edge", id)
			}
		}
	}

	if hasCycle(order, outgoing, byID) {
		res.errorf("graph must be acyclic, but a cycle was detected")
	}

	if queryID != "" && countType(outgoing[queryID], EdgeQuerySupportsConcept) == 0 {
		res.warnf("query node has no outgoing %q edges", EdgeQuerySupportsConcept)
	}
	return res
}

func validateBundle(res *ValidationResult, n *BundleNode, in, out []Edge, tolerance float64) {
	id := n.NodeID
	if c := countType(in, EdgeConceptFormsBundle); c != 1 {
		res.errorf("bundle %q must have exactly 1 incoming %q edge; found %d", id, EdgeConceptFormsBundle, c)
	}
	var sum float64
	supports := 0
	for _, e := range out {
		if isSupport(e.Type) && !math.IsNaN(e.Confidence) {
			sum += e.Confidence
			supports++
		}
	}
	if supports == 0 {
		res.errorf("bundle %q must have at least 1 outgoing support edge to artwork/essay", id)
		return
	}
	if math.IsNaN(n.Confidence) {
		res.errorf("bundle %q has non-numeric confidence", id)
		return
	}
	mean := sum / float64(supports)
	if math.Abs(n.Confidence-mean) > tolerance {
		res.errorf("bundle %q confidence (%.6f) must equal mean of its support edge confidences (%.6f)",
			id, n.Confidence, mean)
	}
}

func countType(edges []Edge, t EdgeType) int {
	c := 0
	for _, e := range edges {
		if e.Type == t {
			c++
		}
	}
	return c
}

// hasCycle runs an iterative three-colour depth-first search over the edges.
func hasCycle(order []string, outgoing map[string][]Edge, byID map[string]Node) bool {
	const (
		white = iota
		grey
		black
	)
	type frame struct {
		id   string
		next int
	}
	color := make(map[string]int, len(order))
	for _, root := range order {
		if color[root] != white {
			continue
		}
		color[root] = grey
		stack := []frame{{id: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := outgoing[top.id]
			if top.next == len(edges) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			to := edges[top.next].To
			top.next++
			if _, ok := byID[to]; !ok {
				continue
			}
			switch color[to] {
			case grey:
				return true
			case white:
				color[to] = grey
				stack = append(stack, frame{id: to})
			}
		}
	}
	return false
}
