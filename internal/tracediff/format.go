package tracediff

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

// Format names accepted by the CLI. Formatting is a pure projection of a
// Comparison; it never re-derives the comparison.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatHTML    = "html"
	FormatUnified = "unified"
)

// ValidFormats lists the supported output formats.
var ValidFormats = []string{FormatText, FormatJSON, FormatHTML, FormatUnified}

// Render projects a comparison into the named format.
func Render(c *Comparison, format string) (string, error) {
	switch format {
	case FormatText:
		return RenderText(c), nil
	case FormatJSON:
		return RenderJSON(c)
	case FormatHTML:
		return RenderHTML(c), nil
	case FormatUnified:
		return RenderUnified(c), nil
	default:
		return "", fmt.Errorf("unknown diff format %q: must be one of %v", format, ValidFormats)
	}
}

// RenderText produces the human-readable listing.
func RenderText(c *Comparison) string {
	var b strings.Builder

	if len(c.Added) > 0 {
		fmt.Fprintf(&b, "Added spans (%d):\n", len(c.Added))
		for _, s := range c.Added {
			fmt.Fprintf(&b, "  + %s  (%s)\n", s.Name, s.Path)
		}
	}
	if len(c.Removed) > 0 {
		fmt.Fprintf(&b, "Removed spans (%d):\n", len(c.Removed))
		for _, s := range c.Removed {
			fmt.Fprintf(&b, "  - %s  (%s)\n", s.Name, s.Path)
		}
	}
	if len(c.Modified) > 0 {
		fmt.Fprintf(&b, "Modified spans (%d):\n", len(c.Modified))
		for _, m := range c.Modified {
			fmt.Fprintf(&b, "  ~ %s  (%s)\n", m.Name, m.Path)
			for _, k := range m.Attrs.Added {
				fmt.Fprintf(&b, "      attr + %s\n", k)
			}
			for _, k := range m.Attrs.Removed {
				fmt.Fprintf(&b, "      attr - %s\n", k)
			}
			for _, ch := range m.Attrs.Changed {
				fmt.Fprintf(&b, "      attr ~ %s: %s -> %s\n", ch.Key, ch.Baseline, ch.Current)
			}
			if m.StatusChanged {
				fmt.Fprintf(&b, "      status changed\n")
			}
			if m.ShapeChanged {
				fmt.Fprintf(&b, "      subtree shape changed\n")
			}
		}
	}
	if len(c.Structural) > 0 {
		fmt.Fprintf(&b, "Structural changes (%d):\n", len(c.Structural))
		for _, s := range c.Structural {
			fmt.Fprintf(&b, "  %s: %s moved %s -> %s\n", s.Kind, s.Name, s.BaselinePath, s.CurrentPath)
		}
	}

	added, removed, modified, unchanged := c.Counts()
	fmt.Fprintf(&b, "\nSummary: %d added, %d removed, %d modified, %d unchanged (similarity %.3f)\n",
		added, removed, modified, unchanged, c.Similarity)
	return b.String()
}

// RenderJSON produces the machine-readable projection.
func RenderJSON(c *Comparison) (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// RenderHTML produces a minimal standalone HTML report.
func RenderHTML(c *Comparison) string {
	var b strings.Builder
	esc := html.EscapeString

	b.WriteString("<!DOCTYPE html>\n<html><head><title>Trace diff</title></head><body>\n")
	fmt.Fprintf(&b, "<h1>Trace diff: %s vs %s</h1>\n", esc(c.BaselineScenario), esc(c.CurrentScenario))
	fmt.Fprintf(&b, "<p>Similarity: %.3f</p>\n", c.Similarity)

	section := func(title string, refs []SpanRef, class string) {
		if len(refs) == 0 {
			return
		}
		fmt.Fprintf(&b, "<h2>%s (%d)</h2>\n<ul class=%q>\n", esc(title), len(refs), class)
		for _, s := range refs {
			fmt.Fprintf(&b, "<li>%s <code>%s</code></li>\n", esc(s.Name), esc(s.Path))
		}
		b.WriteString("</ul>\n")
	}
	section("Added", c.Added, "added")
	section("Removed", c.Removed, "removed")

	if len(c.Modified) > 0 {
		fmt.Fprintf(&b, "<h2>Modified (%d)</h2>\n<ul class=\"modified\">\n", len(c.Modified))
		for _, m := range c.Modified {
			fmt.Fprintf(&b, "<li>%s <code>%s</code>", esc(m.Name), esc(m.Path))
			if !m.Attrs.Empty() {
				b.WriteString("<ul>\n")
				for _, k := range m.Attrs.Added {
					fmt.Fprintf(&b, "<li>attr added: %s</li>\n", esc(k))
				}
				for _, k := range m.Attrs.Removed {
					fmt.Fprintf(&b, "<li>attr removed: %s</li>\n", esc(k))
				}
				for _, ch := range m.Attrs.Changed {
					fmt.Fprintf(&b, "<li>attr %s: %s &rarr; %s</li>\n", esc(ch.Key), esc(ch.Baseline), esc(ch.Current))
				}
				b.WriteString("</ul>")
			}
			b.WriteString("</li>\n")
		}
		b.WriteString("</ul>\n")
	}

	b.WriteString("</body></html>\n")
	return b.String()
}

// RenderUnified produces a unified-diff-style listing over span paths.
func RenderUnified(c *Comparison) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- baseline/%s\n", c.BaselineScenario)
	fmt.Fprintf(&b, "+++ current/%s\n", c.CurrentScenario)

	for _, s := range c.Unchanged {
		fmt.Fprintf(&b, "  %s\n", s.Path)
	}
	for _, m := range c.Modified {
		fmt.Fprintf(&b, "- %s\n", m.Path)
		fmt.Fprintf(&b, "+ %s (modified)\n", m.Path)
	}
	for _, s := range c.Removed {
		fmt.Fprintf(&b, "- %s\n", s.Path)
	}
	for _, s := range c.Added {
		fmt.Fprintf(&b, "+ %s\n", s.Path)
	}
	return b.String()
}
