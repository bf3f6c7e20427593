// Package boilerplate classifies cleaned article text as substantive or
// teaser/boilerplate and trims call-to-action spans at either end.
package boilerplate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinChars       = 280
	MinWords       = 45
	MinSentences   = 3
	MinUniqueRatio = 0.35
)

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bhere['’]?s what (you|to) know\b`),
	regexp.MustCompile(`(?i)\bwhat (we|to) know( so far)?\b`),
	regexp.MustCompile(`(?i)\bread more\b`),
	regexp.MustCompile(`(?i)\bclick here\b`),
	regexp.MustCompile(`(?i)\bsubscribe( now| to)?\b`),
	regexp.MustCompile(`(?i)\bwatch( the)? video\b`),
	regexp.MustCompile(`(?i)\b(opinion|editorial)\b`),
	regexp.MustCompile(`(?i)\bnewsletter sign[- ]?up\b`),
	regexp.MustCompile(`(?i)\b(as|this) (reported|reported earlier)\b`),
	regexp.MustCompile(`(?i)\b(continue|continued) (reading|to read)\b`),
	regexp.MustCompile(`(?i)\btop stories\b`),
	regexp.MustCompile(`(?i)\bmost read\b`),
	regexp.MustCompile(`(?i)\brecommended\b`),
	regexp.MustCompile(`(?i)\btrending\b`),
	regexp.MustCompile(`여기서\s*알아야\s*할\s*것`),
	regexp.MustCompile(`자세히\s*보기`),
	regexp.MustCompile(`더\s*읽어보기`),
	regexp.MustCompile(`구독하고\s*읽기`),
	regexp.MustCompile(`회원\s*가입`),
	regexp.MustCompile(`로그인하고\s*계속`),
}

var (
	wordRe     = regexp.MustCompile(`[A-Za-z0-9가-힣']+`)
	sentenceRe = regexp.MustCompile(`[.!?…]+[\s"]+`)

	// Without (?s) the clause must run to the end of the final line.
	trailingRe = regexp.MustCompile(`(?i)\s+(read more|click here|subscribe|자세히\s*보기|구독하고\s*읽기|회원\s*가입|로그인하고\s*계속)[^\n\r]*$`)
	leadingRe  = regexp.MustCompile(`(?i)^(here['’]?s what (you|to) know|what (we|to) know( so far)?|top stories|most read|recommended)\W+`)
)

// Verdict explains why a text was classified as it was.
type Verdict struct {
	LowQuality  bool
	Reason      string
	Chars       int
	Words       int
	Sentences   int
	UniqueRatio float64
}

const (
	ReasonEmpty      = "empty"
	ReasonShort      = "too_short"
	ReasonFewWords   = "too_few_words"
	ReasonSentences  = "too_few_sentences"
	ReasonRepetitive = "low_lexical_diversity"
	ReasonPattern    = "boilerplate_pattern"
)

// IsLowQuality reports whether text should be rejected before dedup.
func IsLowQuality(text string) bool {
	return Classify(text).LowQuality
}

func Classify(text string) Verdict {
	t := strings.TrimSpace(text)
	if t == "" {
		return Verdict{LowQuality: true, Reason: ReasonEmpty}
	}

	v := Verdict{Chars: utf8.RuneCountInString(t)}
	if v.Chars < MinChars {
		v.LowQuality, v.Reason = true, ReasonShort
		return v
	}

	words := wordRe.FindAllString(t, -1)
	v.Words = len(words)
	if v.Words < MinWords {
		v.LowQuality, v.Reason = true, ReasonFewWords
		return v
	}

	v.Sentences = len(sentenceRe.Split(t, -1))
	if v.Sentences < MinSentences {
		v.LowQuality, v.Reason = true, ReasonSentences
		return v
	}

	v.UniqueRatio = uniqueRatio(words)
	if v.UniqueRatio < MinUniqueRatio {
		v.LowQuality, v.Reason = true, ReasonRepetitive
		return v
	}

	for _, re := range patterns {
		if re.MatchString(t) {
			v.LowQuality, v.Reason = true, ReasonPattern
			return v
		}
	}
	return v
}

func uniqueRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[strings.ToLower(w)] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

// TrimBoiler strips a trailing call-to-action clause and a leading teaser
// lead-in, reporting whether anything changed.
func TrimBoiler(text string) (string, bool) {
	if text == "" {
		return text, false
	}
	t := trailingRe.ReplaceAllString(text, "")
	t = leadingRe.ReplaceAllString(t, "")
	t = strings.TrimSpace(t)
	return t, t != text
}
