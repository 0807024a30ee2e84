package gemini

import (
	"context"
	"testing"
)

func TestNewGeneratorRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewGenerator(context.Background(), "   ", ""); err == nil {
		t.Fatal("expected an error for a blank api key")
	}
}

func TestGeneratorRejectsBadInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g, err := NewGenerator(ctx, "test-key", "")
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if g.Model() != defaultModel {
		t.Fatalf("expected default model, got %q", g.Model())
	}

	if _, err := g.GenerateContent(ctx, "  "); err == nil {
		t.Fatal("blank prompt must be rejected before any request")
	}
	if _, err := g.EnsureJobCache(ctx, "", "job", "payload"); err == nil {
		t.Fatal("blank job key must be rejected")
	}
	if _, err := g.EnsureJobCache(ctx, "job-1", "job", " "); err == nil {
		t.Fatal("blank payload must be rejected")
	}

	var nilGen *Generator
	if nilGen.Model() != "" {
		t.Fatal("nil generator has no model")
	}
	if _, err := nilGen.GenerateContent(ctx, "hi"); err == nil {
		t.Fatal("nil generator must fail")
	}
}
