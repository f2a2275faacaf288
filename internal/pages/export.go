package pages

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
	FormatHTML     ExportFormat = "html"
)

func ParseExportFormat(s string) (ExportFormat, bool) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, true
	case "markdown", "md":
		return FormatMarkdown, true
	case "html":
		return FormatHTML, true
	}
	return "", false
}

func (f ExportFormat) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}

func (f ExportFormat) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatHTML:
		return "html"
	default:
		return "json"
	}
}

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdownEngine() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownInstance
}

type jsonExport struct {
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	Content    Document  `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	ExportedAt time.Time `json:"exportedAt"`
}

// Export renders the page in the requested format.
func Export(p *Page, format ExportFormat, now time.Time) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(jsonExport{
			Title:      p.Title,
			Slug:       p.Slug,
			Content:    p.Content,
			CreatedAt:  p.CreatedAt,
			UpdatedAt:  p.UpdatedAt,
			ExportedAt: now,
		}, "", "  ")
	case FormatMarkdown:
		return []byte(Markdown(p)), nil
	case FormatHTML:
		var body bytes.Buffer
		if err := markdownEngine().Convert([]byte(Markdown(p)), &body); err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		var out bytes.Buffer
		fmt.Fprintf(&out, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(p.Title))
		out.Write(body.Bytes())
		out.WriteString("</body>\n</html>\n")
		return out.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// Markdown renders the page title and blocks. Unknown block types are skipped.
func Markdown(p *Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", inline(p.Title))
	for _, blk := range p.Content.Blocks {
		if md := blockMarkdown(blk); md != "" {
			b.WriteString(md)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

type listItem struct {
	Content string     `json:"content"`
	Text    string     `json:"text"`
	Checked bool       `json:"checked"`
	Items   []listItem `json:"items"`
}

func (li *listItem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		li.Content = s
		return nil
	}
	type plain listItem
	return json.Unmarshal(data, (*plain)(li))
}

type blockData struct {
	Text         string     `json:"text"`
	Level        int        `json:"level"`
	Style        string     `json:"style"`
	Items        []listItem `json:"items"`
	Caption      string     `json:"caption"`
	Code         string     `json:"code"`
	HTML         string     `json:"html"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Link         string     `json:"link"`
	URL          string     `json:"url"`
	Source       string     `json:"source"`
	Content      [][]string `json:"content"`
	WithHeadings bool       `json:"withHeadings"`
	File         struct {
		URL string `json:"url"`
	} `json:"file"`
	Meta struct {
		Title string `json:"title"`
	} `json:"meta"`
}

func blockMarkdown(blk Block) string {
	var d blockData
	if len(blk.Data) > 0 {
		if err := json.Unmarshal(blk.Data, &d); err != nil {
			return ""
		}
	}

	switch blk.Type {
	case "header":
		level := d.Level
		if level < 1 || level > 6 {
			level = 2
		}
		return strings.Repeat("#", level) + " " + inline(d.Text)
	case "paragraph":
		return inline(d.Text)
	case "list":
		var b strings.Builder
		writeList(&b, d.Items, d.Style == "ordered", 0)
		return strings.TrimRight(b.String(), "\n")
	case "checklist":
		lines := make([]string, 0, len(d.Items))
		for _, it := range d.Items {
			mark := " "
			if it.Checked {
				mark = "x"
			}
			lines = append(lines, fmt.Sprintf("- [%s] %s", mark, inline(it.Text)))
		}
		return strings.Join(lines, "\n")
	case "quote":
		out := "> " + inline(d.Text)
		if d.Caption != "" {
			out += "\n>\n> " + inline(d.Caption)
		}
		return out
	case "code":
		return "```\n" + d.Code + "\n```"
	case "delimiter":
		return "---"
	case "image":
		url := d.File.URL
		if url == "" {
			url = d.URL
		}
		return fmt.Sprintf("![%s](%s)", inline(d.Caption), url)
	case "table":
		return tableMarkdown(d.Content, d.WithHeadings)
	case "linkTool":
		title := d.Meta.Title
		if title == "" {
			title = d.Link
		}
		return fmt.Sprintf("[%s](%s)", inline(title), d.Link)
	case "warning":
		return fmt.Sprintf("> **%s**\n> %s", inline(d.Title), inline(d.Message))
	case "raw":
		return "```html\n" + d.HTML + "\n```"
	case "embed":
		out := fmt.Sprintf("[%s](%s)", d.Source, d.Source)
		if d.Caption != "" {
			out += "\n\n" + inline(d.Caption)
		}
		return out
	case "button":
		if d.URL == "" {
			return "**[" + inline(d.Text) + "]**"
		}
		return fmt.Sprintf("[%s](%s)", inline(d.Text), d.URL)
	}
	return ""
}

func writeList(b *strings.Builder, items []listItem, ordered bool, depth int) {
	indent := strings.Repeat("  ", depth)
	for i, it := range items {
		marker := "-"
		if ordered {
			marker = fmt.Sprintf("%d.", i+1)
		}
		fmt.Fprintf(b, "%s%s %s\n", indent, marker, inline(it.Content))
		if len(it.Items) > 0 {
			writeList(b, it.Items, ordered, depth+1)
		}
	}
}

func tableMarkdown(rows [][]string, withHeadings bool) string {
	if len(rows) == 0 {
		return ""
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	row := func(cells []string) string {
		out := make([]string, width)
		for i := range out {
			if i < len(cells) {
				out[i] = strings.ReplaceAll(inline(cells[i]), "|", "\\|")
			}
		}
		return "| " + strings.Join(out, " | ") + " |"
	}

	var lines []string
	body := rows
	if withHeadings {
		lines = append(lines, row(rows[0]))
		body = rows[1:]
	} else {
		lines = append(lines, row(nil))
	}
	sep := make([]string, width)
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
	for _, r := range body {
		lines = append(lines, row(r))
	}
	return strings.Join(lines, "\n")
}

var (
	reBold   = regexp.MustCompile(`(?i)<(?:b|strong)>(.*?)</(?:b|strong)>`)
	reItalic = regexp.MustCompile(`(?i)<(?:i|em)>(.*?)</(?:i|em)>`)
	reCode   = regexp.MustCompile(`(?i)<code[^>]*>(.*?)</code>`)
	reLink   = regexp.MustCompile(`(?i)<a[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	reBreak  = regexp.MustCompile(`(?i)<br\s*/?>`)
	reTag    = regexp.MustCompile(`<[^>]+>`)
)

// inline converts the small HTML subset produced by inline editor tools into
// Markdown and drops every other tag.
func inline(s string) string {
	s = reBreak.ReplaceAllString(s, " ")
	s = reLink.ReplaceAllString(s, "[$2]($1)")
	s = reBold.ReplaceAllString(s, "**$1**")
	s = reItalic.ReplaceAllString(s, "*$1*")
	s = reCode.ReplaceAllString(s, "`$1`")
	s = reTag.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}
