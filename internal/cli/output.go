// Package cli renders search responses and catalog listings for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/artatlas/internal/concept"
	"github.com/hyperjump/artatlas/internal/models"
	"github.com/hyperjump/artatlas/internal/search"
	"github.com/hyperjump/artatlas/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, response *search.Response, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	writeSearchResultsText(w, response)
	return nil
}

func writeSearchResultsText(w io.Writer, response *search.Response) {
	md := response.Metadata
	fmt.Fprintf(w, "\n%s: %q\n", response.Message, response.Query)
	fmt.Fprintf(w, "%d results (%d artworks, %d essays) in %dms via %s\n",
		len(response.Results), md.ArtworkResults, md.EssayResults, md.QueryTimeMS, md.PathTaken)

	if len(response.DetectedConcepts) > 0 {
		fmt.Fprintln(w, "\nDetected concepts:")
		for _, c := range response.DetectedConcepts {
			writeConceptMatch(w, c)
		}
	}

	if len(response.Results) > 0 {
		fmt.Fprintln(w)
	}
	for _, r := range response.Results {
		writeOneResult(w, r)
	}

	if g := response.Explanation; g != nil {
		fmt.Fprintf(w, "\nExplanation: %d nodes, %d edges, %d evidence bundles\n",
			len(g.Nodes), len(g.Edges), len(response.Bundles))
	} else if len(response.Bundles) > 0 {
		fmt.Fprintf(w, "\nEvidence: %d bundles\n", len(response.Bundles))
	}
	for _, b := range response.Bundles {
		fmt.Fprintf(w, "  %s: %d artworks, %d essays, confidence %.3f\n",
			bundleName(b.ConceptName, b.PrimaryConcept), len(b.Artworks), len(b.Essays), b.EvidenceConfidence)
	}
	for _, warning := range response.ExplanationWarnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func writeConceptMatch(w io.Writer, c concept.Match) {
	flag := ""
	if c.UsedForExpansion {
		flag = " [expanded]"
	}
	fmt.Fprintf(w, "  %-24s %-9s confidence %.3f%s\n",
		bundleName(c.ConceptName, c.ConceptID), c.ConceptType, c.ConfidenceScore, flag)
}

func writeOneResult(w io.Writer, r *models.RetrievalItem) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "#%d [%s %d] Score: %.4f (Lexical: %.4f, Semantic: %.4f, Concept: %.4f)\n",
		r.Rank, r.Type, r.ID, r.FinalScore, r.LexicalScore, r.SemanticScore, r.ConceptScore)
	fmt.Fprintf(w, "Title: %s\n", utils.Truncate(r.Title, 80))
	switch r.Type {
	case models.CorpusArtwork:
		details := make([]string, 0, 4)
		for _, d := range []string{r.Artist, r.Medium, r.Culture, r.Department} {
			if d != "" {
				details = append(details, d)
			}
		}
		if len(details) > 0 {
			fmt.Fprintln(w, strings.Join(details, " | "))
		}
	case models.CorpusEssay:
		if r.Source != "" {
			fmt.Fprintf(w, "Source: %s (chunk %d)\n", r.Source, r.ChunkIndex)
		}
		fmt.Fprintf(w, "\n%s\n", utils.TruncateWords(r.Text, 40))
	}
	if lex := r.Trace.Lexical; lex != nil && len(lex.MatchedLexemes) > 0 {
		fmt.Fprintf(w, "Matched: %s in %s\n", strings.Join(lex.MatchedLexemes, ", "), strings.Join(lex.MatchedFields, ", "))
	}
	if r.Trace.Fallback {
		fmt.Fprintln(w, "(vector fallback)")
	}
	fmt.Fprintln(w)
}

func bundleName(name string, id int64) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("concept %d", id)
}

// ConceptRow is one line of a concept listing.
type ConceptRow struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Primary   bool    `json:"primary"`
	Support   int     `json:"support"`
	Authority float64 `json:"authority"`
}

// ConceptRows joins stored concepts with their prototypes in snap, which may be nil.
func ConceptRows(concepts []*models.Concept, snap *concept.Snapshot) []ConceptRow {
	prototypes := map[int64]concept.Prototype{}
	if snap != nil {
		for _, p := range snap.Prototypes {
			prototypes[p.ConceptID] = p
		}
	}
	rows := make([]ConceptRow, 0, len(concepts))
	for _, c := range concepts {
		row := ConceptRow{ID: c.ID, Name: c.Name, Type: c.Type, Primary: c.Primary}
		if snap != nil && snap.Types[c.ID] == concept.Primary {
			row.Primary = true
		}
		if p, ok := prototypes[c.ID]; ok {
			row.Support = p.Support
			row.Authority = p.Authority
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteConcepts writes a concept listing in the given format.
func WriteConcepts(w io.Writer, rows []ConceptRow, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, rows)
	}
	fmt.Fprintf(w, "%-4s %-24s %-10s %-7s %-7s %s\n", "ID", "NAME", "TYPE", "PRIMARY", "SUPPORT", "AUTHORITY")
	for _, r := range rows {
		primary := ""
		if r.Primary {
			primary = "yes"
		}
		fmt.Fprintf(w, "%-4d %-24s %-10s %-7s %-7d %.3f\n", r.ID, r.Name, r.Type, primary, r.Support, r.Authority)
	}
	return nil
}

// AffinityReport is the JSON shape of an affinity run.
type AffinityReport struct {
	Persisted bool                    `json:"persisted"`
	Mappings  []models.ArtworkConcept `json:"mappings"`
	// PerConcept counts mappings by concept name.
	PerConcept map[string]int `json:"per_concept"`
}

// WriteAffinities writes generated artwork-concept mappings. snap resolves concept names
// and may be nil.
func WriteAffinities(w io.Writer, mappings []models.ArtworkConcept, snap *concept.Snapshot, persisted bool, format OutputFormat) error {
	report := AffinityReport{Persisted: persisted, Mappings: mappings, PerConcept: map[string]int{}}
	names := make([]string, 0)
	for _, m := range mappings {
		name := fmt.Sprintf("concept %d", m.ConceptID)
		if snap != nil && snap.Names[m.ConceptID] != "" {
			name = snap.Names[m.ConceptID]
		}
		if report.PerConcept[name] == 0 {
			names = append(names, name)
		}
		report.PerConcept[name]++
	}
	if report.Mappings == nil {
		report.Mappings = []models.ArtworkConcept{}
	}
	if format == OutputJSON {
		return WriteJSON(w, report)
	}

	verb := "generated (dry run)"
	if persisted {
		verb = "persisted"
	}
	fmt.Fprintf(w, "%d artwork affinities %s\n", len(mappings), verb)
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-24s %d\n", name, report.PerConcept[name])
	}
	return nil
}
