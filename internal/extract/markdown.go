package extract

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type frontMatter struct {
	Title string `yaml:"title"`
}

// extractMarkdown reads an optional YAML front matter block for the title, otherwise
// uses the first level-one heading. Heading markers are stripped from the text.
func extractMarkdown(content []byte) (*Document, error) {
	text := strings.ReplaceAll(validUTF8(content), "\r\n", "\n")
	doc := &Document{}

	if rest, ok := strings.CutPrefix(text, "---\n"); ok {
		block, body, found := strings.Cut(rest, "\n---")
		if found {
			var fm frontMatter
			if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
				return nil, fmt.Errorf("parse front matter: %w", err)
			}
			doc.Title = fm.Title
			text = strings.TrimPrefix(body, "\n")
		}
	}

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if doc.Title == "" && strings.HasPrefix(trimmed, "# ") {
			doc.Title = strings.TrimSpace(trimmed[2:])
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			out = append(out, trimmed)
			continue
		}
		out = append(out, line)
	}
	doc.Text = strings.Join(out, "\n")
	return doc, nil
}
