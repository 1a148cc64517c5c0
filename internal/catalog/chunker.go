package catalog

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// chunkNamespace scopes essay chunk keys so the same title, source and index always
// produce the same key.
var chunkNamespace = uuid.MustParse("0b9c53a4-2f61-4a0e-9d7e-6f1c7b6a3e58")

// Chunker splits essay text into overlapping word windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into overlapping windows. Returns nil for blank text.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	chunks := make([]string, 0, len(words)/step+1)
	for start := 0; ; start += step {
		end := min(start+c.chunkSize, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			return chunks
		}
	}
}

// ChunkKey returns the stable key of one essay chunk.
func ChunkKey(title, source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(title+"|"+source+"|"+strconv.Itoa(index))).String()
}

// Preprocess folds compatibility characters (ligatures, full-width forms) with NFKC and
// collapses every whitespace run, line breaks included, to one space.
func Preprocess(text string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(text)), " ")
}

// titleFromFilename turns "dutch_golden-age.pdf" into "dutch golden age".
func titleFromFilename(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return Preprocess(name)
}
