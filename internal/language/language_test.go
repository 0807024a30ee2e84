package language

import "testing"

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "cyrillic", input: "Привет, какая вилка?", expect: Russian},
		{name: "spanish marks", input: "¿Cuál es el rango?", expect: Spanish},
		{name: "spanish keyword without marks", input: "el salario y remoto", expect: Spanish},
		{name: "russian transliterated marker", input: "stek?", expect: English},
		{name: "english default", input: "What is the salary range?", expect: English},
		{name: "empty", input: "", expect: English},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Detect(tt.input); got != tt.expect {
				t.Fatalf("Detect(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

func TestPickCandidateLanguage(t *testing.T) {
	if got := PickCandidateLanguage([]string{"", " ES-mx ", "en"}, English); got != Spanish {
		t.Fatalf("expected es, got %q", got)
	}
	if got := PickCandidateLanguage(nil, English); got != English {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestNeedsDetection(t *testing.T) {
	for lang, want := range map[string]bool{"": true, "AUTO": true, "en": false, "ru-RU": false} {
		if got := NeedsDetection(lang); got != want {
			t.Errorf("NeedsDetection(%q) = %v, want %v", lang, got, want)
		}
	}
}
