package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractWithCat converts ODT and RTF documents. The format is sniffed from content.
func extractWithCat(content []byte) (*Document, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return nil, fmt.Errorf("extract document: %w", err)
	}
	return &Document{Text: text}, nil
}
