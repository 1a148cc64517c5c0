//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxTensors are the pre-allocated session tensors; Run reads inputs and writes output in place.
type onnxTensors struct {
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

func newONNXTensors(maxTokens, dims int, meanPooling bool) (*onnxTensors, error) {
	t := &onnxTensors{}
	inputShape := ort.NewShape(1, int64(maxTokens))
	var err error
	if t.inputIDs, err = ort.NewTensor(inputShape, make([]int64, maxTokens)); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if t.attentionMask, err = ort.NewTensor(inputShape, make([]int64, maxTokens)); err != nil {
		t.destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if t.tokenTypeIDs, err = ort.NewTensor(inputShape, make([]int64, maxTokens)); err != nil {
		t.destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	outputShape := ort.NewShape(1, int64(dims))
	if meanPooling {
		outputShape = ort.NewShape(1, int64(maxTokens), int64(dims))
	}
	if t.output, err = ort.NewTensor(outputShape, make([]float32, outputShape.FlattenedSize())); err != nil {
		t.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	return t, nil
}

func (t *onnxTensors) destroy() {
	if t.inputIDs != nil {
		_ = t.inputIDs.Destroy()
	}
	if t.attentionMask != nil {
		_ = t.attentionMask.Destroy()
	}
	if t.tokenTypeIDs != nil {
		_ = t.tokenTypeIDs.Destroy()
	}
	if t.output != nil {
		_ = t.output.Destroy()
	}
	*t = onnxTensors{}
}

// ONNXEmbedder embeds text with a sentence-transformer model through ONNX Runtime.
// It requires CGO and the onnxruntime shared library. Calls are serialized.
type ONNXEmbedder struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	tensors   *onnxTensors
	tokenizer Tokenizer
	cache     *EmbeddingCache
	opts      ONNXOptions
}

// NewONNXEmbedder creates an ONNX embedder, initializing the runtime environment on first use.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: failed to initialize ONNX runtime: %v", ErrUnavailable, err)
		}
	}

	var tokenizer Tokenizer = &SimpleTokenizer{}
	if opts.TokenizerPath != "" {
		wp, err := NewWordPieceTokenizer(opts.TokenizerPath)
		if err != nil {
			return nil, err
		}
		tokenizer = wp
	}
	cache, err := NewEmbeddingCache(opts.CacheSize)
	if err != nil {
		return nil, err
	}
	tensors, err := newONNXTensors(opts.MaxTokens, opts.Dimensions, opts.MeanPooling)
	if err != nil {
		return nil, err
	}

	outputName := "output"
	if opts.MeanPooling {
		outputName = "last_hidden_state"
	}
	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{outputName},
		[]ort.ArbitraryTensor{tensors.inputIDs, tensors.attentionMask, tensors.tokenTypeIDs},
		[]ort.ArbitraryTensor{tensors.output},
		nil,
	)
	if err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("%w: failed to create ONNX session for %s: %v", ErrUnavailable, opts.ModelPath, err)
	}

	return &ONNXEmbedder{
		session:   session,
		tensors:   tensors,
		tokenizer: tokenizer,
		cache:     cache,
		opts:      opts,
	}, nil
}

// Embed returns the unit-norm embedding for text, using the cache when available.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("%w: embedder closed", ErrUnavailable)
	}

	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Tokenize(text, e.opts.MaxTokens)
	copy(e.tensors.inputIDs.GetData(), inputIDs)
	copy(e.tensors.attentionMask.GetData(), attentionMask)
	copy(e.tensors.tokenTypeIDs.GetData(), tokenTypeIDs)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: inference failed: %v", ErrUnavailable, err)
	}

	out := e.tensors.output.GetData()
	var v []float32
	if e.opts.MeanPooling {
		v = meanPool(out, attentionMask, e.opts.Dimensions)
	} else {
		v = make([]float32, e.opts.Dimensions)
		copy(v, out[:e.opts.Dimensions])
	}
	NormalizeL2Slice(v)
	e.cache.Set(text, v)
	return v, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.opts.Dimensions
}

// Close destroys the session and tensors. Later calls to Embed fail with ErrUnavailable.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Close()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.tensors != nil {
		e.tensors.destroy()
	}
	return err
}
