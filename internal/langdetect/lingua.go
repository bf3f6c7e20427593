package langdetect

import (
	"strings"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

const minLetters = 6

// DefaultLanguages covers the feeds the curator ingests.
var DefaultLanguages = []lingua.Language{
	lingua.English,
	lingua.Korean,
	lingua.Japanese,
	lingua.Chinese,
	lingua.German,
	lingua.French,
	lingua.Spanish,
}

// Detector wraps a lingua detector built once for a fixed language set.
// It is safe for concurrent use.
type Detector struct {
	detector lingua.LanguageDetector
}

func New(languages ...lingua.Language) *Detector {
	if len(languages) < 2 {
		languages = DefaultLanguages
	}
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build(),
	}
}

// DetectISO6391 returns a lowercase two-letter code, or "" when the sample
// is too short or the language is unknown.
func (d *Detector) DetectISO6391(text string) string {
	if d == nil {
		return ""
	}

	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minLetters {
		return ""
	}

	language, exists := d.detector.DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}
