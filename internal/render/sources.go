package render

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/Tsauerd/vibropress-assistant-front/internal/api"
)

const (
	previewLimit    = 250
	sectionLimit    = 40
	maxEntityTags   = 5
	sourcesHeader   = "📚 <b>Источники</b>"
	entitiesPerLine = " "
)

var (
	docExtRe       = regexp.MustCompile(`(?i)\.(pdf|docx|doc|txt|rtf)$`)
	normativeRe    = regexp.MustCompile(`(?i)(ГОСТ|СП|СНиП)[\s_-]*(\d+[.\-]\d+)`)
	pagePatternRe  = regexp.MustCompile(`(?i)стр\.?\s*(\d+)|страниц[аы]\s*(\d+)|page\s*(\d+)`)
	sourceTypeIcon = map[string]string{
		"gost":         "📋",
		"manual":       "⚙️",
		"presentation": "📊",
		"book":         "📚",
	}
)

// NormativeRef is a recognized normative-document identifier inside a source
// title (ГОСТ 6665-91, СП 78.13330 and the like).
type NormativeRef struct {
	Kind   string
	Number string
}

// FormatSourceName strips known document extensions from a title.
func FormatSourceName(title string) string {
	return docExtRe.ReplaceAllString(title, "")
}

// ExtractNormativeRef finds a normative-document reference in a title.
func ExtractNormativeRef(title string) (NormativeRef, bool) {
	m := normativeRe.FindStringSubmatch(title)
	if m == nil {
		return NormativeRef{}, false
	}
	return NormativeRef{Kind: strings.ToUpper(m[1]), Number: m[2]}, true
}

// ExtractPage pulls a page number out of free preview text ("стр. 12",
// "страница 12", "page 12").
func ExtractPage(text string) (int, bool) {
	m := pagePatternRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g != "" {
			n, err := strconv.Atoi(g)
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

// FormatSources renders the sources block; an empty list renders nothing.
func FormatSources(sources []api.Source) string {
	if len(sources) == 0 {
		return ""
	}
	parts := make([]string, 0, len(sources)+1)
	parts = append(parts, sourcesHeader)
	for _, s := range sources {
		parts = append(parts, FormatSource(s))
	}
	return strings.Join(parts, "\n\n")
}

// FormatSource renders one compact source: icon, cleaned title, a meta line
// (normative ref, section, page) and a truncated preview. Missing fields are
// simply absent.
func FormatSource(s api.Source) string {
	icon := sourceTypeIcon[s.Type]
	if icon == "" {
		icon = "📄"
	}

	var b strings.Builder
	b.WriteString(icon)
	b.WriteString(" <b>")
	b.WriteString(html.EscapeString(FormatSourceName(s.Title)))
	b.WriteString("</b>")

	if meta := sourceMeta(s); meta != "" {
		b.WriteString("\n")
		b.WriteString(meta)
	}

	if s.ContentPreview != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(Truncate(s.ContentPreview, previewLimit)))
	}

	if tags := entityTags(s.Entities, maxEntityTags); tags != "" {
		b.WriteString("\n")
		b.WriteString(tags)
	}
	return b.String()
}

// FormatSourceDetail is the expanded view behind the "показать детали"
// affordance: full preview and section, no truncation.
func FormatSourceDetail(s api.Source) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(FormatSourceName(s.Title)))
	b.WriteString("</b>")
	if s.Section != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(s.Section))
	}
	if s.ContentPreview != "" {
		b.WriteString("\n\n")
		b.WriteString(html.EscapeString(s.ContentPreview))
	}
	if s.Score > 0 {
		b.WriteString(fmt.Sprintf("\n\nРелевантность: %.2f", s.Score))
	}
	if tags := entityTags(s.Entities, len(s.Entities)); tags != "" {
		b.WriteString("\n")
		b.WriteString(tags)
	}
	return b.String()
}

func sourceMeta(s api.Source) string {
	var parts []string
	if ref, ok := ExtractNormativeRef(s.Title); ok {
		parts = append(parts, html.EscapeString(ref.Kind+" "+ref.Number))
	}
	if s.Section != "" {
		parts = append(parts, html.EscapeString(Truncate(s.Section, sectionLimit)))
	}
	if page, ok := sourcePage(s); ok {
		parts = append(parts, fmt.Sprintf("стр. %d", page))
	}
	return strings.Join(parts, " • ")
}

// sourcePage prefers the structured page number and falls back to scanning
// the preview text.
func sourcePage(s api.Source) (int, bool) {
	if s.PageNumber > 0 {
		return s.PageNumber, true
	}
	return ExtractPage(s.ContentPreview)
}

func entityTags(entities []string, limit int) string {
	if len(entities) == 0 {
		return ""
	}
	if limit > len(entities) {
		limit = len(entities)
	}
	tags := make([]string, 0, limit)
	for _, e := range entities[:limit] {
		if strings.TrimSpace(e) == "" {
			continue
		}
		tags = append(tags, "<code>"+html.EscapeString(e)+"</code>")
	}
	return strings.Join(tags, entitiesPerLine)
}

// FormatEntities renders response-level entities as inline tags.
func FormatEntities(entities []api.Entity) string {
	if len(entities) == 0 {
		return ""
	}
	tags := make([]string, 0, len(entities))
	for _, e := range entities {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		tags = append(tags, "<code>"+html.EscapeString(e.Text)+"</code>")
	}
	return strings.Join(tags, entitiesPerLine)
}

// Truncate cuts s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
