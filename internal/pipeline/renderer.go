package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/ppiankov/tokenatlas/internal/model"
)

var (
	categoryColor  = color.New(color.Bold, color.FgCyan)
	primitiveColor = color.New(color.FgGreen)
	semanticColor  = color.New(color.FgMagenta)
	faintColor     = color.New(color.Faint)
	warnColor      = color.New(color.FgYellow)
	unusedColor    = color.New(color.FgRed)
)

// Renderer prints catalog trees and usage summaries for terminals
type Renderer struct {
	out io.Writer
}

// NewRenderer creates a renderer writing to out
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// RenderTree prints categories with their tokens indented beneath them
func (r *Renderer) RenderTree(categories []*model.Category) {
	for _, cat := range categories {
		r.renderCategory(cat, 0)
	}
}

func (r *Renderer) renderCategory(cat *model.Category, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(r.out, "%s%s %s\n", indent, categoryColor.Sprint(cat.Name), faintColor.Sprint(cat.Path))

	for _, nt := range cat.Tokens {
		tok := nt.Token
		line := fmt.Sprintf("%s  %s = %s", indent, nt.Name, tok.Value.String())
		if tok.IsSemantic() {
			resolved := unusedColor.Sprint("unresolved")
			if tok.ResolvedValue != nil {
				resolved = tok.ResolvedValue.String()
			}
			line += fmt.Sprintf(" -> %s %s", resolved, semanticColor.Sprint("[semantic]"))
		} else {
			line += " " + primitiveColor.Sprint("[primitive]")
		}
		if tok.Description != "" {
			line += " " + faintColor.Sprint("# "+tok.Description)
		}
		fmt.Fprintln(r.out, line)
	}

	for _, sub := range cat.Subcategories {
		r.renderCategory(sub, depth+1)
	}
}

// RenderSummary prints token counts per tier
func (r *Renderer) RenderSummary(meta model.Meta) {
	fmt.Fprintf(r.out, "\n%d tokens (%s primitive, %s semantic)\n",
		meta.TokenCount,
		primitiveColor.Sprint(meta.PrimitiveCount),
		semanticColor.Sprint(meta.SemanticCount))
}

// RenderWarnings prints one line per warning
func (r *Renderer) RenderWarnings(messages []string) {
	if len(messages) == 0 {
		return
	}
	fmt.Fprintf(r.out, "\n%s\n", warnColor.Sprintf("%d warning(s):", len(messages)))
	for _, msg := range messages {
		fmt.Fprintf(r.out, "  ! %s\n", msg)
	}
}

// RenderUsage prints every token with its consumers. With unusedOnly set,
// only tokens that no component references are listed.
func (r *Renderer) RenderUsage(index model.UsageIndex, unusedOnly bool) {
	paths := make([]string, 0, len(index))
	for p := range index {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	unused := 0
	for _, p := range paths {
		entries := index[p]
		if len(entries) == 0 {
			unused++
			fmt.Fprintf(r.out, "%s %s\n", p, unusedColor.Sprint("unused"))
			continue
		}
		if unusedOnly {
			continue
		}

		fmt.Fprintf(r.out, "%s %s\n", categoryColor.Sprint(p), faintColor.Sprintf("%d match(es)", index.Count(p)))
		for _, e := range entries {
			title := e.ComponentTitle
			if e.ComponentCategory != "" {
				title = e.ComponentCategory + " / " + title
			}
			fmt.Fprintf(r.out, "  %s %s\n", title, faintColor.Sprint(e.ComponentPath))
			for _, m := range e.Matches {
				fmt.Fprintf(r.out, "    %4d  %-18s %s\n", m.Line, m.Property, strings.TrimSpace(m.LineContent))
			}
		}
	}

	fmt.Fprintf(r.out, "\n%d tokens, %d unused\n", len(paths), unused)
}
