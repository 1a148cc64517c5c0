package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// lineBreakHyphen matches a word hyphenated across a line break.
var lineBreakHyphen = regexp.MustCompile(`(\p{L})-\n(\p{Ll})`)

func extractPDF(content []byte) (*Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	doc := &Document{Text: lineBreakHyphen.ReplaceAllString(strings.Join(pages, "\n\n"), "$1$2")}
	if info := r.Trailer().Key("Info"); !info.IsNull() {
		doc.Title = info.Key("Title").Text()
	}
	return doc, nil
}
