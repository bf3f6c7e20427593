// Package keywords implements a RAKE-style phrase extractor: stopword
// delimited candidates scored by co-occurrence degree and frequency, boosted
// by title overlap and capitalization, then deduplicated greedily.
package keywords

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultTopK = 8

	maxPhraseWords = 4

	titleSubstringBoost = 1.25
	titleWordsBoost     = 1.15
	capitalizedBoost    = 1.10
	lengthBonusPerWord  = 0.05

	maxJaccard = 0.6
)

var tokenRe = regexp.MustCompile(`[0-9A-Za-z가-힣]+(?:-[0-9A-Za-z가-힣]+)*`)

// Extractor holds the word lists used for segmentation. It is read-only
// after construction and safe for concurrent use.
type Extractor struct {
	stopwords map[string]struct{}
	generic   map[string]struct{}
}

func NewExtractor() *Extractor {
	return &Extractor{
		stopwords: wordSet(englishStopwords, koreanStopwords),
		generic:   wordSet(genericNouns),
	}
}

type phrase struct {
	surface string
	words   []string
	score   float64
	first   int
}

// Extract returns at most topK phrases from title and text, best first.
// Phrases keep the casing of their first occurrence.
func (e *Extractor) Extract(text, title string, topK int) []string {
	if topK <= 0 {
		return nil
	}

	titleTokens := tokenRe.FindAllString(title, -1)
	bodyTokens := tokenRe.FindAllString(text, -1)
	if len(titleTokens) == 0 && len(bodyTokens) == 0 {
		return nil
	}

	// Title and body are segmented separately so no phrase spans the seam.
	candidates := append(e.segment(titleTokens), e.segment(bodyTokens)...)
	if len(candidates) == 0 {
		return nil
	}

	normTitle := strings.ToLower(strings.Join(titleTokens, " "))
	titleWords := make(map[string]struct{}, len(titleTokens))
	for _, tok := range titleTokens {
		titleWords[strings.ToLower(tok)] = struct{}{}
	}

	capitalized := make(map[string]struct{})
	for _, tokens := range [][]string{titleTokens, bodyTokens} {
		for _, tok := range tokens {
			if isTitleCase(tok) {
				capitalized[strings.ToLower(tok)] = struct{}{}
			}
		}
	}

	degree := make(map[string]int)
	freq := make(map[string]int)
	for _, cand := range candidates {
		counted := make(map[string]struct{}, len(cand))
		for _, tok := range cand {
			word := strings.ToLower(tok)
			if _, dup := counted[word]; dup {
				continue
			}
			counted[word] = struct{}{}
			degree[word] += len(cand) - 1
			freq[word]++
		}
	}

	byKey := make(map[string]*phrase)
	ordered := make([]*phrase, 0, len(candidates))
	for _, cand := range candidates {
		words := make([]string, len(cand))
		for i, tok := range cand {
			words[i] = strings.ToLower(tok)
		}
		key := strings.Join(words, " ")
		if _, seen := byKey[key]; seen {
			continue
		}

		hasCapital := containsAny(words, capitalized)
		if !hasCapital && e.allGeneric(words) {
			continue
		}

		score := 0.0
		for _, word := range words {
			score += float64(degree[word] + freq[word])
		}
		switch {
		case strings.Contains(normTitle, key):
			score *= titleSubstringBoost
		case containsAll(words, titleWords):
			score *= titleWordsBoost
		}
		if hasCapital {
			score *= capitalizedBoost
		}
		score *= 1 + lengthBonusPerWord*float64(len(words)-1)

		p := &phrase{surface: strings.Join(cand, " "), words: words, score: score, first: len(ordered)}
		byKey[key] = p
		ordered = append(ordered, p)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].score > ordered[j].score
	})

	kept := make([]*phrase, 0, topK)
	for _, p := range ordered {
		if overlapsAny(p, kept) {
			continue
		}
		kept = append(kept, p)
		if len(kept) == topK {
			break
		}
	}

	out := make([]string, len(kept))
	for i, p := range kept {
		out[i] = p.surface
	}
	return out
}

// segment splits tokens at stopwords and single characters. Runs longer
// than maxPhraseWords are emitted as every window of that length.
func (e *Extractor) segment(tokens []string) [][]string {
	var out [][]string
	run := make([]string, 0, maxPhraseWords)
	flush := func() {
		switch {
		case len(run) == 0:
		case len(run) <= maxPhraseWords:
			out = append(out, append([]string(nil), run...))
		default:
			for i := 0; i+maxPhraseWords <= len(run); i++ {
				out = append(out, append([]string(nil), run[i:i+maxPhraseWords]...))
			}
		}
		run = run[:0]
	}

	for _, tok := range tokens {
		if e.isBoundary(tok) {
			flush()
			continue
		}
		run = append(run, tok)
	}
	flush()
	return out
}

func (e *Extractor) isBoundary(tok string) bool {
	if utf8.RuneCountInString(tok) == 1 {
		return true
	}
	_, stop := e.stopwords[strings.ToLower(tok)]
	return stop
}

func (e *Extractor) allGeneric(words []string) bool {
	for _, word := range words {
		_, stop := e.stopwords[word]
		_, generic := e.generic[word]
		if !stop && !generic {
			return false
		}
	}
	return true
}

func overlapsAny(p *phrase, kept []*phrase) bool {
	key := strings.Join(p.words, " ")
	for _, k := range kept {
		other := strings.Join(k.words, " ")
		if strings.Contains(other, key) || strings.Contains(key, other) {
			return true
		}
		if jaccard(p.words, k.words) >= maxJaccard {
			return true
		}
	}
	return false
}

func jaccard(a, b []string) float64 {
	set := make(map[string]struct{}, len(a))
	for _, w := range a {
		set[w] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, w := range b {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := set[w]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// isTitleCase reports an upper-case first letter followed by no upper-case
// letters.
func isTitleCase(tok string) bool {
	first, size := utf8.DecodeRuneInString(tok)
	if !unicode.IsUpper(first) {
		return false
	}
	for _, r := range tok[size:] {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func containsAny(words []string, set map[string]struct{}) bool {
	for _, w := range words {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

func containsAll(words []string, set map[string]struct{}) bool {
	for _, w := range words {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
