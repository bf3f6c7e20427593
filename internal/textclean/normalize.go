// Package textclean turns raw article markup (or plain text) into a single
// line of visible text with navigation, advertising and call-to-action
// noise removed.
package textclean

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const fallbackPageURL = "https://localhost/"

var (
	noiseRe = regexp.MustCompile(`(?i)\bsubscribe\b|advertis|\bad[-_]?slot\b|\bcookie|\bshare\b|follow[\s_-]*us|newsletter|related[\s_-]*articles|recommended|most[\s_-]*read|\bpromo\b|\bpaywall\b|\bfooter\b|\bheader\b|\bnav(igation)?\b|\bcomments?\b|\bsocial\b|\bsign[\s_-]?in\b|\blogin\b`)

	hardStripRe = regexp.MustCompile(`(?i)\b(read more|click here|continue reading|subscribe( now| to)?)\b|\b(you['’]ve reached your limit|sign in to continue|access denied)\b|(자세히\s*보기|더\s*읽어보기|구독하고\s*읽기|회원\s*가입|로그인하고\s*계속)`)

	ellipsisRe = regexp.MustCompile(`\.{3,}`)
	shoutRe    = regexp.MustCompile(`[!?]{3,}`)

	entityLikeRe  = regexp.MustCompile(`&(#?[0-9A-Za-z]+;)`)
	angleBrackets = strings.NewReplacer("<", "‹", ">", "›")

	zeroWidth = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\u2060", "", "\ufeff", "")
)

var landmarkRoles = map[string]struct{}{
	"banner":        {},
	"navigation":    {},
	"complementary": {},
	"contentinfo":   {},
}

// Options controls optional extraction behaviour.
type Options struct {
	// ReadabilityFullPages runs readability over full HTML pages before
	// the noise passes.
	ReadabilityFullPages bool
}

type Normalizer struct {
	opts Options
}

func New(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

// Normalize cleans raw with default options. ok is false when nothing
// visible remains.
func Normalize(raw string) (string, bool) {
	return New(Options{}).Normalize(raw)
}

func (n *Normalizer) Normalize(raw string) (string, bool) {
	return n.NormalizePage(raw, "")
}

// NormalizePage is Normalize with the page URL readability should resolve
// relative links against.
func (n *Normalizer) NormalizePage(raw, pageURL string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}

	source := raw
	if n != nil && n.opts.ReadabilityFullPages && looksLikeFullPage(raw) {
		if text, ok := readableText(raw, pageURL); ok {
			source = html.EscapeString(text)
		}
	}

	text := visibleText(source)
	text = stripInline(text)
	if text == "" {
		return "", false
	}
	return text, true
}

func looksLikeFullPage(raw string) bool {
	lowered := strings.ToLower(raw)
	return strings.Contains(lowered, "<html") || strings.Contains(lowered, "<body")
}

func readableText(raw, pageURL string) (string, bool) {
	base, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || base.Host == "" {
		base, _ = url.Parse(fallbackPageURL)
	}

	article, err := readability.FromReader(strings.NewReader(raw), base)
	if err != nil {
		return "", false
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", false
	}
	text := strings.TrimSpace(rendered.String())
	return text, text != ""
}

// visibleText parses markup best-effort; on parser failure the input is
// treated as plain text.
func visibleText(source string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return source
	}

	removeNoise(doc)

	parts := make([]string, 0, 64)
	for _, root := range doc.Nodes {
		collectText(root, &parts)
	}
	return strings.Join(parts, " ")
}

func removeNoise(doc *goquery.Document) {
	doc.Find("head, script, style, noscript, template, nav, aside").Remove()

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch name {
		case "html", "head", "body":
			return
		}

		if isNoiseElement(s) {
			s.Remove()
			return
		}
		if name == "a" && utf8.RuneCountInString(strings.TrimSpace(s.Text())) <= 2 {
			s.Remove()
		}
	})
}

func isNoiseElement(s *goquery.Selection) bool {
	role := strings.ToLower(strings.TrimSpace(s.AttrOr("role", "")))
	if _, ok := landmarkRoles[role]; ok {
		return true
	}
	if _, hidden := s.Attr("aria-hidden"); hidden {
		return true
	}

	attrs := strings.ToLower(strings.Join([]string{
		s.AttrOr("id", ""),
		s.AttrOr("class", ""),
		role,
		s.AttrOr("aria-label", ""),
	}, " "))
	if strings.TrimSpace(attrs) == "" {
		return false
	}
	return noiseRe.MatchString(attrs)
}

func collectText(node *html.Node, parts *[]string) {
	if node.Type == html.TextNode {
		if trimmed := strings.TrimSpace(node.Data); trimmed != "" {
			*parts = append(*parts, literalText(trimmed))
		}
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, parts)
	}
}

// literalText keeps decoded text from parsing as markup or entities when
// the result is normalized again.
func literalText(text string) string {
	text = angleBrackets.Replace(text)
	return entityLikeRe.ReplaceAllString(text, "&amp;$1")
}

// stripInline removes hard boilerplate phrases until none remain, then
// normalizes runs of punctuation and whitespace.
func stripInline(text string) string {
	t := collapseSpace(zeroWidth.Replace(text))
	for i := 0; i < 4; i++ {
		next := collapseSpace(hardStripRe.ReplaceAllString(t, ""))
		if next == t {
			break
		}
		t = next
	}
	t = ellipsisRe.ReplaceAllString(t, "...")
	t = shoutRe.ReplaceAllString(t, "!!")
	return collapseSpace(t)
}

func collapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
