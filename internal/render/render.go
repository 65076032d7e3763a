// ABOUTME: Flattens bot reply text into plain text suitable for direct messages
// ABOUTME: Markdown is parsed with goldmark and walked into paragraphs, list items and links

// Package render turns the text of a bot activity into plain text. Bot
// Framework activities default to markdown, while DM platforms display text
// verbatim, so emphasis markers, link syntax and code fences are removed and
// links keep their destination in parentheses.
package render

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Text formats used by Bot Framework activities.
const (
	FormatMarkdown = "markdown"
	FormatPlain    = "plain"
	FormatXML      = "xml"
)

var parser = goldmark.New().Parser()

// PlainText converts text in the given format to plain text. An empty format
// is treated as markdown, the Bot Framework default.
func PlainText(s, format string) string {
	switch strings.ToLower(format) {
	case FormatPlain, FormatXML:
		return strings.TrimSpace(s)
	}
	return markdownToPlain(s)
}

func markdownToPlain(md string) string {
	source := []byte(md)
	doc := parser.Parse(text.NewReader(source))

	w := &writer{source: source, labels: make(map[ast.Node]int)}
	if err := ast.Walk(doc, w.visit); err != nil {
		return strings.TrimSpace(md)
	}
	return strings.TrimSpace(w.b.String())
}

type writer struct {
	b      strings.Builder
	source []byte
	labels map[ast.Node]int // link node -> builder offset where its label starts
}

func (w *writer) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Paragraph, *ast.Heading:
		if entering {
			w.startBlock(n)
		}
	case *ast.ThematicBreak:
		if entering {
			w.blankLine()
			w.b.WriteString("---")
		}
	case *ast.List:
		if _, nested := n.Parent().(*ast.ListItem); entering && !nested {
			w.blankLine()
		}
	case *ast.ListItem:
		if entering {
			w.newline()
			w.b.WriteString(listPrefix(node))
		}
	case *ast.Text:
		if entering {
			w.b.Write(node.Segment.Value(w.source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				w.b.WriteByte('\n')
			}
		}
	case *ast.String:
		if entering {
			w.b.Write(node.Value)
		}
	case *ast.AutoLink:
		if entering {
			w.b.Write(node.URL(w.source))
		}
		return ast.WalkSkipChildren, nil
	case *ast.Link:
		w.link(n, entering, string(node.Destination))
	case *ast.Image:
		w.link(n, entering, string(node.Destination))
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			w.blankLine()
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				segment := lines.At(i)
				w.b.Write(segment.Value(w.source))
			}
		}
		return ast.WalkSkipChildren, nil
	case *ast.RawHTML, *ast.HTMLBlock:
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

// startBlock separates a paragraph or heading from what came before it.
// Paragraphs inside a list item stay on the item's line.
func (w *writer) startBlock(n ast.Node) {
	if _, inItem := n.Parent().(*ast.ListItem); inItem {
		if n.PreviousSibling() != nil {
			w.newline()
		}
		return
	}
	w.blankLine()
}

// link writes " (destination)" after the label unless the label already is
// the destination.
func (w *writer) link(n ast.Node, entering bool, destination string) {
	if entering {
		w.labels[n] = w.b.Len()
		return
	}
	start := w.labels[n]
	delete(w.labels, n)
	label := w.b.String()[start:]
	if destination != "" && label != destination {
		fmt.Fprintf(&w.b, " (%s)", destination)
	}
}

func (w *writer) newline() {
	s := w.b.String()
	if len(s) > 0 && !strings.HasSuffix(s, "\n") {
		w.b.WriteByte('\n')
	}
}

func (w *writer) blankLine() {
	s := w.b.String()
	switch {
	case len(s) == 0, strings.HasSuffix(s, "\n\n"):
	case strings.HasSuffix(s, "\n"):
		w.b.WriteByte('\n')
	default:
		w.b.WriteString("\n\n")
	}
}

// listPrefix returns the bullet or number for an item, indented by nesting depth.
func listPrefix(item *ast.ListItem) string {
	depth := 0
	for p := item.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.ListItem); ok {
			depth++
		}
	}
	indent := strings.Repeat("  ", depth)

	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return indent + "- "
	}
	index := 0
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		index++
	}
	return fmt.Sprintf("%s%d. ", indent, list.Start+index)
}
