// Package render превращает ответ бэкенда в разметку для Telegram
// (HTML parse mode). Все функции чистые: пакет ничего не знает про
// telegram-bot-api, отправкой занимается адаптер.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// MathRenderer typesets a bare expression like "n = 4". When no renderer is
// wired in, the notation pass is skipped entirely.
type MathRenderer interface {
	Render(expr string) string
}

// Formatter renders raw answer text through a fixed pipeline: escape first,
// then the supported markdown subset, then block layout. Output is stable
// for a given input.
type Formatter struct {
	Math MathRenderer
}

var (
	blockSplitRe = regexp.MustCompile(`\n[ \t]*\n+`)

	boldStarRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderRe  = regexp.MustCompile(`__(.+?)__`)
	italicStarRe = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicUndRe  = regexp.MustCompile(`_([^_\n]+)_`)
	codeRe       = regexp.MustCompile("`([^`\n]+)`")

	bulletLineRe  = regexp.MustCompile(`^[ \t]*[-•*][ \t]+`)
	orderedLineRe = regexp.MustCompile(`^[ \t]*\d+[.)][ \t]+`)

	mpaRe    = regexp.MustCompile("`(\\d+)М`[ \t]?(Па|МПа|па|мпа)")
	assignRe = regexp.MustCompile(`\b([a-zA-Z_]+)[ \t]*=[ \t]*(\d+)\b`)
)

// FormatAnswer renders raw model output. Raw text never reaches the output
// unescaped, so neither model output nor quoted user input can inject markup.
func (f Formatter) FormatAnswer(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	text := html.EscapeString(strings.ReplaceAll(raw, "\r\n", "\n"))
	text = f.applyMath(text)

	blocks := blockSplitRe.Split(text, -1)
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b) == "" {
			continue
		}
		out = append(out, formatBlock(b))
	}
	return strings.Join(out, "\n\n")
}

// applyMath converts recognized technical notation and hands each expression
// to the external typesetter. `25М`Па becomes a typeset "25 МПа", a bare
// "n = 4" becomes a typeset assignment.
func (f Formatter) applyMath(text string) string {
	if f.Math == nil {
		return text
	}
	text = mpaRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := mpaRe.FindStringSubmatch(m)
		return f.Math.Render(parts[1]) + " " + parts[2]
	})
	text = assignRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := assignRe.FindStringSubmatch(m)
		return f.Math.Render(parts[1] + " = " + parts[2])
	})
	return text
}

func formatBlock(block string) string {
	lines := strings.Split(block, "\n")

	switch {
	case anyLineMatches(lines, bulletLineRe):
		return formatBulletList(lines)
	case anyLineMatches(lines, orderedLineRe):
		return formatOrderedList(lines)
	case isTable(lines):
		return formatTable(lines)
	}
	return formatParagraph(lines)
}

func anyLineMatches(lines []string, re *regexp.Regexp) bool {
	for _, l := range lines {
		if re.MatchString(l) {
			return true
		}
	}
	return false
}

func formatBulletList(lines []string) string {
	var items []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		text := strings.TrimSpace(bulletLineRe.ReplaceAllString(l, ""))
		items = append(items, "• "+applyInline(text))
	}
	return strings.Join(items, "\n")
}

func formatOrderedList(lines []string) string {
	var items []string
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n++
		text := strings.TrimSpace(orderedLineRe.ReplaceAllString(l, ""))
		items = append(items, fmt.Sprintf("%d. %s", n, applyInline(text)))
	}
	return strings.Join(items, "\n")
}

// isTable: a block of at least two pipe-delimited rows.
func isTable(lines []string) bool {
	rows := 0
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "|") {
			return false
		}
		rows++
	}
	return rows >= 2
}

// formatTable lays pipe tables out as aligned monospace text; Telegram HTML
// has no table element.
func formatTable(lines []string) string {
	var rows [][]string
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" || isSeparatorRow(t) {
			continue
		}
		t = strings.Trim(t, "|")
		cells := strings.Split(t, "|")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return ""
	}

	widths := make([]int, 0)
	for _, row := range rows {
		for i, c := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := len([]rune(c)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	b.WriteString("<pre>")
	for ri, row := range rows {
		if ri > 0 {
			b.WriteString("\n")
		}
		for i, c := range row {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(c)
			if pad := widths[i] - len([]rune(c)); pad > 0 && i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", pad))
			}
		}
	}
	b.WriteString("</pre>")
	return b.String()
}

func isSeparatorRow(t string) bool {
	inner := strings.Trim(t, "|")
	if inner == "" {
		return false
	}
	for _, r := range inner {
		switch r {
		case '-', ':', '|', ' ', '\t':
		default:
			return false
		}
	}
	return strings.ContainsRune(inner, '-')
}

func formatParagraph(lines []string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		t := strings.TrimRight(l, " \t")
		if heading, ok := strings.CutPrefix(strings.TrimSpace(t), "### "); ok {
			out = append(out, "<b>"+applyInline(heading)+"</b>")
			continue
		}
		out = append(out, applyInline(t))
	}
	return strings.Join(out, "\n")
}

func applyInline(s string) string {
	s = boldStarRe.ReplaceAllString(s, "<b>$1</b>")
	s = boldUnderRe.ReplaceAllString(s, "<b>$1</b>")
	s = italicStarRe.ReplaceAllString(s, "<i>$1</i>")
	s = italicUndRe.ReplaceAllString(s, "<i>$1</i>")
	s = codeRe.ReplaceAllString(s, "<code>$1</code>")
	return s
}
