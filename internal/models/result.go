package models

// LexicalMatch records which lexemes and fields matched an item lexically.
type LexicalMatch struct {
	Source         string   `json:"source"`
	MatchedLexemes []string `json:"matched_lexemes,omitempty"`
	MatchedFields  []string `json:"matched_fields,omitempty"`
}

// SemanticMatch records the vector similarity behind an item's semantic score.
type SemanticMatch struct {
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"`
}

// RetrievalTrace explains how an item was retrieved.
type RetrievalTrace struct {
	Lexical  *LexicalMatch  `json:"lexical_match,omitempty"`
	Semantic *SemanticMatch `json:"semantic_match,omitempty"`
	// Fallback is set when the item came from the unfiltered vector fallback.
	Fallback bool `json:"fallback,omitempty"`
}

// RetrievalItem is a hit from either corpus with its scores.
type RetrievalItem struct {
	ID   int64  `json:"id"`
	Type Corpus `json:"type"`

	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Medium     string `json:"medium,omitempty"`
	Culture    string `json:"culture,omitempty"`
	Department string `json:"department,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	Text       string `json:"chunk_text,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	Source     string `json:"source,omitempty"`

	LexicalScore  float64        `json:"lexical_score"`
	SemanticScore float64        `json:"semantic_score"`
	ConceptScore  float64        `json:"concept_score,omitempty"`
	FinalScore    float64        `json:"final_score"`
	Rank          int            `json:"rank"`
	Trace         RetrievalTrace `json:"retrieval_trace"`
}

// FromArtwork fills the descriptive fields of an item from an artwork record.
func FromArtwork(a *Artwork) *RetrievalItem {
	return &RetrievalItem{
		ID:         a.ID,
		Type:       CorpusArtwork,
		Title:      a.Title,
		Artist:     a.Artist,
		Medium:     a.Medium,
		Culture:    a.Culture,
		Department: a.Department,
		ImageURL:   a.ImageURL,
	}
}

// FromEssay fills the descriptive fields of an item from an essay chunk.
func FromEssay(e *Essay) *RetrievalItem {
	return &RetrievalItem{
		ID:         e.ID,
		Type:       CorpusEssay,
		Title:      e.Title,
		Text:       e.Text,
		ChunkIndex: e.ChunkIndex,
		Source:     e.Source,
	}
}
