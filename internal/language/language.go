// Package language guesses the language of candidate messages.
package language

import (
	"strings"
	"unicode"
)

const (
	English = "en"
	Russian = "ru"
	Spanish = "es"
	// Auto asks for detection from the next inbound message.
	Auto = "auto"
)

var (
	spanishMarks   = "¿¡ñáéíóú"
	russianMarkers = []string{"зарплат", "вилка", "удален", "стек", "собесед"}
	spanishMarkers = []string{"salario", "remoto", "proceso", "entrevista"}
)

// Detect returns ru, es or en for the given text. English is the fallback.
func Detect(text string) string {
	lowered := strings.ToLower(text)

	for _, r := range lowered {
		if unicode.Is(unicode.Cyrillic, r) {
			return Russian
		}
	}
	if strings.ContainsAny(lowered, spanishMarks) {
		return Spanish
	}

	for _, marker := range russianMarkers {
		if strings.Contains(lowered, marker) {
			return Russian
		}
	}
	for _, marker := range spanishMarkers {
		if strings.Contains(lowered, marker) {
			return Spanish
		}
	}

	return English
}

// PickCandidateLanguage returns the first declared language, normalized, or
// fallback when none is declared.
func PickCandidateLanguage(languages []string, fallback string) string {
	for _, l := range languages {
		if l = Normalize(l); l != "" {
			return l
		}
	}
	return fallback
}

// Normalize lowercases a language tag and strips any region ("en-US" -> "en").
func Normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return tag
}

// NeedsDetection reports whether the language should be taken from text.
func NeedsDetection(lang string) bool {
	lang = Normalize(lang)
	return lang == "" || lang == Auto
}
