package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	docxCorePath        = "docProps/core.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// wpTag matches one <w:p> paragraph element, attributes included.
	wpTag = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	// wtTag matches <w:t>text</w:t> with any attributes.
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	// mainPartRe finds the main document part in [Content_Types].xml in either attribute order.
	mainPartRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"` +
		`|<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
	dcTitle = regexp.MustCompile(`(?s)<dc:title[^>]*>(.*?)</dc:title>`)
)

// readZipEntry returns the content of the named entry, or nil when it is absent.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

// mainDocumentPath resolves the body part from [Content_Types].xml, falling back to
// word/document.xml.
func mainDocumentPath(zr *zip.Reader) string {
	types, err := readZipEntry(zr, contentTypesPath)
	if err != nil || types == nil {
		return docxDocumentXMLPath
	}
	m := mainPartRe.FindSubmatch(types)
	if m == nil {
		return docxDocumentXMLPath
	}
	part := m[1]
	if len(part) == 0 {
		part = m[2]
	}
	return strings.TrimPrefix(string(part), "/")
}

// extractDOCX extracts an essay from .docx bytes. Runs inside a paragraph are
// concatenated as-is since Word splits words across runs; paragraphs become lines.
func extractDOCX(content []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	docPath := mainDocumentPath(zr)
	body, err := readZipEntry(zr, docPath)
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}
	if body == nil {
		return nil, fmt.Errorf("extract DOCX: %s not found", docPath)
	}

	paragraphs := wpTag.FindAllString(string(body), -1)
	if len(paragraphs) == 0 {
		paragraphs = []string{string(body)}
	}
	lines := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		var b strings.Builder
		for _, run := range wtTag.FindAllStringSubmatch(p, -1) {
			b.WriteString(run[1])
		}
		if line := strings.TrimSpace(html.UnescapeString(b.String())); line != "" {
			lines = append(lines, line)
		}
	}

	doc := &Document{Text: strings.Join(lines, "\n")}
	if core, err := readZipEntry(zr, docxCorePath); err == nil && core != nil {
		if m := dcTitle.FindSubmatch(core); m != nil {
			doc.Title = html.UnescapeString(string(m[1]))
		}
	}
	return doc, nil
}
