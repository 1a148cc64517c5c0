// Package extract turns essay documents into text and reads artwork spreadsheets.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrUnsupported is returned for formats that do not carry essay text.
var ErrUnsupported = errors.New("unsupported essay format")

// Document is the text of an essay file. Title is set when the file declares one
// (markdown front matter or heading, PDF info, DOCX core properties).
type Document struct {
	Title string
	Text  string
}

// Extractor extracts essay documents from files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its document.
func (e *Extractor) Extract(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts a document from content based on ext, which includes the
// leading dot (e.g. ".pdf"). Unknown extensions are read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (*Document, error) {
	var (
		doc *Document
		err error
	)
	switch strings.ToLower(ext) {
	case ".pdf":
		doc, err = extractPDF(content)
	case ".docx":
		doc, err = extractDOCX(content)
	case ".odt", ".rtf":
		doc, err = extractWithCat(content)
	case ".md", ".markdown":
		doc, err = extractMarkdown(content)
	case ".xlsx", ".xls":
		return nil, fmt.Errorf("%w: %s holds artwork records", ErrUnsupported, ext)
	default:
		doc = &Document{Text: validUTF8(content)}
	}
	if err != nil {
		return nil, err
	}
	doc.Title = strings.Join(strings.Fields(doc.Title), " ")
	doc.Text = normalizeText(doc.Text)
	return doc, nil
}

var (
	blankLines = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
	spaceRuns  = regexp.MustCompile(`[ \t\f\v]+`)
)

// normalizeText unifies line endings, collapses runs of spaces and blank lines, and
// trims the result. Paragraph breaks survive as a single blank line.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
