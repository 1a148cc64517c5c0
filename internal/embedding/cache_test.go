package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c, err := NewEmbeddingCache(16)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	c.Wait()
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Fatalf("Get: got %v, %v", v, ok)
	}
	v[0] = 42
	again, _ := c.Get("a")
	if again[0] != 1 {
		t.Error("cached value should not alias returned slice")
	}
}

func TestEmbeddingCache_disabled(t *testing.T) {
	c, err := NewEmbeddingCache(0)
	if err != nil {
		t.Fatal(err)
	}
	c.Set("a", []float32{1})
	c.Wait()
	if _, ok := c.Get("a"); ok {
		t.Error("zero-capacity cache should never hit")
	}
	c.Close()
}

func TestCachedEmbedder(t *testing.T) {
	inner := NewStaticEmbedder(2, map[string][]float32{"vanitas": {1, 0}})
	e, err := NewCachedEmbedder(inner, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	ctx := context.Background()
	if _, err := e.Embed(ctx, "vanitas"); err != nil {
		t.Fatal(err)
	}
	e.cache.Wait()
	v, err := e.Embed(ctx, "vanitas")
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != 1 || v[1] != 0 {
		t.Errorf("unexpected vector %v", v)
	}
	if inner.Calls() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.Calls())
	}
	if e.Dimensions() != 2 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}

	if _, err := e.Embed(ctx, "unknown"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
