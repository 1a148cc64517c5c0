package embedding

import (
	"fmt"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

const (
	clsTokenID = 101
	sepTokenID = 102
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs (for testing or fallback).
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	words := SplitWords(strings.ToLower(text))
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1

	pos := 1
	for _, word := range words {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % 30000)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepTokenID
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// WordPieceTokenizer tokenizes with a HuggingFace tokenizer.json, matching
// the vocabulary the ONNX model was exported with.
type WordPieceTokenizer struct {
	tk *tokenizer.Tokenizer
}

// NewWordPieceTokenizer loads the tokenizer.json at path.
func NewWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &WordPieceTokenizer{tk: tk}, nil
}

// Tokenize encodes text with special tokens, truncating to maxTokens and
// padding with zeros. Encoding failures fall back to an empty [CLS] [SEP] input.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	en, err := t.tk.EncodeSingle(text, true)
	if err != nil || len(en.GetIds()) == 0 {
		inputIDs[0], attentionMask[0] = clsTokenID, 1
		if maxTokens > 1 {
			inputIDs[1], attentionMask[1] = sepTokenID, 1
		}
		return inputIDs, attentionMask, tokenTypeIDs
	}

	ids := en.GetIds()
	types := en.GetTypeIds()
	n := len(ids)
	if n > maxTokens {
		n = maxTokens
	}
	for i := 0; i < n; i++ {
		inputIDs[i] = int64(ids[i])
		attentionMask[i] = 1
		if i < len(types) {
			tokenTypeIDs[i] = int64(types[i])
		}
	}
	// keep the trailing [SEP] when truncated
	if len(ids) > maxTokens {
		inputIDs[maxTokens-1] = int64(ids[len(ids)-1])
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
