package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	t.Setenv("TENER_TEST_SECRET", "from-env")

	got, err := Load(Source{Name: "api key", File: path, Env: "TENER_TEST_SECRET", Value: "inline"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected file secret, got %q", got)
	}
}

func TestLoadEnvThenValue(t *testing.T) {
	t.Setenv("TENER_TEST_SECRET", " from-env ")

	got, err := Load(Source{Env: "TENER_TEST_SECRET", Value: "inline"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("expected env secret, got %q", got)
	}

	got, err = Load(Source{Env: "TENER_TEST_SECRET_UNSET", Value: " inline "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "inline" {
		t.Fatalf("expected inline secret, got %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, []byte("   "), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	tests := []struct {
		name   string
		src    Source
		expect string
	}{
		{name: "not configured", src: Source{Name: "unipile api key"}, expect: "unipile api key is not configured"},
		{name: "empty file", src: Source{File: empty}, expect: "is empty"},
		{name: "missing file", src: Source{File: filepath.Join(t.TempDir(), "nope")}, expect: "reading secret from file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.src)
			if err == nil || !strings.Contains(err.Error(), tt.expect) {
				t.Fatalf("expected error containing %q, got %v", tt.expect, err)
			}
		})
	}
}

func TestOptional(t *testing.T) {
	got, err := Optional(Source{Name: "gemini api key"})
	if err != nil || got != "" {
		t.Fatalf("expected empty secret without error, got %q, %v", got, err)
	}
}
