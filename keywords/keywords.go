// Package keywords derives candidate tag keywords from an image caption.
package keywords

import (
	"regexp"
	"strings"

	prose "github.com/jdkato/prose/v2"
)

var fallbackWord = regexp.MustCompile(`[a-z]{3,}`)

// Warmup exercises the tagging path once so model data is paged in before
// the first pipeline run. A failure is not fatal; Extract falls back on its
// own.
func Warmup() error {
	_, err := prose.NewDocument("a photo of a cat",
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	return err
}

// Extract returns the candidate keywords of a caption: nouns and adjectives
// longer than 2 characters, lowercased, deduplicated in first-occurrence
// order. If the tagger cannot run, a regex over lowercase alphabetic runs
// takes its place; Extract never fails.
func Extract(caption string) []string {
	lower := strings.ToLower(strings.TrimSpace(caption))
	if lower == "" {
		return []string{}
	}

	doc, err := prose.NewDocument(lower,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return fallbackExtract(lower)
	}

	out := []string{}
	seen := make(map[string]struct{})
	for _, tok := range doc.Tokens() {
		if !strings.HasPrefix(tok.Tag, "NN") && !strings.HasPrefix(tok.Tag, "JJ") {
			continue
		}
		if len([]rune(tok.Text)) <= 2 {
			continue
		}
		if _, ok := seen[tok.Text]; ok {
			continue
		}
		seen[tok.Text] = struct{}{}
		out = append(out, tok.Text)
	}
	return out
}

// fallbackExtract keeps every lowercase alphabetic run of length >= 3,
// deduplicated preserving first occurrence.
func fallbackExtract(lower string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, word := range fallbackWord.FindAllString(lower, -1) {
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}
