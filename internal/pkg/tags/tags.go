// Package tags derives entry tags from inline #hashtags in markdown content.
package tags

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MaxTags caps the number of tags kept per entry.
const MaxTags = 20

var (
	parser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

	hashtagPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_&/#])#(\p{L}[\p{L}\p{N}_-]*)`)
)

// Extract returns the sorted, de-duplicated, lowercase tags found in content.
// Hashtags inside code spans, code blocks, links and raw HTML are ignored.
func Extract(content string) []string {
	if strings.TrimSpace(content) == "" {
		return []string{}
	}
	source := []byte(content)
	doc := parser.Parse(text.NewReader(source))

	seen := make(map[string]struct{})
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.CodeSpan, *ast.Link, *ast.AutoLink, *ast.RawHTML, *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			for _, m := range hashtagPattern.FindAllStringSubmatch(string(node.Segment.Value(source)), -1) {
				if tag := Normalize(m[1]); tag != "" {
					seen[tag] = struct{}{}
				}
			}
		}
		return ast.WalkContinue, nil
	})

	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	if len(out) > MaxTags {
		out = out[:MaxTags]
	}
	return out
}

// Normalize lowercases a tag and trims separator characters from its ends.
func Normalize(tag string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(tag)), "-_#")
}

// Merge combines explicit tags with extracted ones, normalised and sorted.
func Merge(explicit []string, content string) []string {
	seen := make(map[string]struct{})
	for _, t := range explicit {
		if n := Normalize(t); n != "" {
			seen[n] = struct{}{}
		}
	}
	for _, t := range Extract(content) {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) > MaxTags {
		out = out[:MaxTags]
	}
	return out
}
