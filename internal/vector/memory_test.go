package vector

import (
	"context"
	"math"
	"testing"
)

func TestMemoryIndex_UpsertSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{2, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Upsert(ctx, []int64{1, 2, 3}, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 1 {
		t.Errorf("top result should be 1, got %d", results[0].ID)
	}
	if math.Abs(results[0].Score-1) > 1e-9 {
		t.Errorf("unnormalized vector should still score cosine 1, got %f", results[0].Score)
	}
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []int64{7}, [][]float32{{1, 0}})
	_ = idx.Upsert(ctx, []int64{7}, [][]float32{{0, 1}})
	if idx.Size() != 1 {
		t.Fatalf("expected size 1, got %d", idx.Size())
	}
	v, ok := idx.Vector(7)
	if !ok || v[1] != 1 {
		t.Errorf("Vector(7) = %v, %v", v, ok)
	}
}

func TestMemoryIndex_SearchFilter(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []int64{1, 2, 3}, [][]float32{{1, 0}, {0.8, 0.2}, {0, 1}})

	results, err := idx.Search(ctx, []float32{1, 0}, 5, map[int64]struct{}{3: {}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != 3 {
		t.Errorf("filtered search returned %+v", results)
	}

	results, _ = idx.Search(ctx, []float32{1, 0}, 5, map[int64]struct{}{})
	if len(results) != 0 {
		t.Errorf("empty filter should match nothing, got %d", len(results))
	}
}

func TestMemoryIndex_SearchTieBreak(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []int64{9, 4, 6}, [][]float32{{1, 0}, {1, 0}, {1, 0}})
	results, _ := idx.Search(ctx, []float32{1, 0}, 3, nil)
	want := []int64{4, 6, 9}
	for i, r := range results {
		if r.ID != want[i] {
			t.Errorf("results[%d].ID = %d, want %d", i, r.ID, want[i])
		}
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []int64{1, 2}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Remove(ctx, []int64{1}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	if _, ok := idx.Vector(1); ok {
		t.Error("removed vector still present")
	}
	if _, ok := idx.Vector(2); !ok {
		t.Error("vector 2 should remain after removing 1")
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	if err := idx.Upsert(context.Background(), []int64{1}, [][]float32{{1, 0, 0}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if _, err := idx.Search(context.Background(), []float32{1}, 1, nil); err == nil {
		t.Error("expected query dimension mismatch error")
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{2, 4}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out := Decode(Encode(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d", len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("out[%d] = %f, want %f", i, out[i], in[i])
		}
	}
}
