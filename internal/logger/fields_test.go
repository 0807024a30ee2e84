package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  unipile  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "provider" || fields[0].String != "unipile" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}

	if empty := StringFields(); len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	WithFields(logger, zap.String("foo", "bar")).Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	if got := entries[0].ContextMap()["foo"]; got != "bar" {
		t.Fatalf("expected field to be bar, got %q", got)
	}

	fallback := WithFields(nil, zap.String("baz", "qux"))
	if fallback == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}
	fallback.Info("another log")
}

func TestConversationFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fields  []zap.Field
		expects map[string]string
	}{
		{
			name:   "all identifiers",
			fields: ConversationFields(1, 2, 3, "chat-1"),
			expects: map[string]string{
				FieldJobID:          "1",
				FieldCandidateID:    "2",
				FieldConversationID: "3",
				FieldChatID:         "chat-1",
			},
		},
		{
			name:    "zero ids skipped",
			fields:  ConversationFields(0, 5, 0, " "),
			expects: map[string]string{FieldCandidateID: "5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if len(tt.fields) != len(tt.expects) {
				t.Fatalf("expected %d fields, got %d", len(tt.expects), len(tt.fields))
			}
			for _, f := range tt.fields {
				if tt.expects[f.Key] != f.String {
					t.Fatalf("field %s: expected %q, got %q", f.Key, tt.expects[f.Key], f.String)
				}
			}
		})
	}
}

func TestWithProvider(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	WithProvider(zap.New(core), "gemini", "model-x").Info("test log")

	ctx := observed.All()[0].ContextMap()
	if ctx[FieldProvider] != "gemini" {
		t.Fatalf("expected provider field to be gemini, got %q", ctx[FieldProvider])
	}
	if ctx[FieldModel] != "model-x" {
		t.Fatalf("expected model field to be model-x, got %q", ctx[FieldModel])
	}

	WithProvider(nil, "gemini", "").Info("no panic")
}
