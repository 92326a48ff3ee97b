package telegram

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/anatolykoptev/huddle/internal/render"
)

// maxMessageLen is Telegram's per-message limit.
const maxMessageLen = 4096

// htmlTagMinLen is the length of the shortest tag, "<b>".
const htmlTagMinLen = 3

// Render turns the final fragments of a turn into Telegram HTML and a plain
// fallback. Structured views bring their own HTML; model prose is Markdown
// and is converted here.
func Render(frags []render.Fragment) (htmlText, plain string) {
	var h, p []string
	for _, f := range frags {
		md := f.Markdown()
		if md == "" {
			continue
		}
		p = append(p, stripMarkdown(md))
		if f.Kind() == render.KindText {
			h = append(h, proseHTML(md))
		} else {
			h = append(h, f.HTML())
		}
	}
	return strings.Join(h, "\n\n"), strings.Join(p, "\n\n")
}

// proseRules rewrite escaped Markdown into Telegram HTML. Order matters:
// *** before ** before *.
var proseRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`), "<b>$1</b>"},
	{regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`), `<a href="$2">$1</a>`},
	{regexp.MustCompile(`\*\*\*(.+?)\*\*\*`), "<b><i>$1</i></b>"},
	{regexp.MustCompile(`\*\*(.+?)\*\*`), "<b>$1</b>"},
	{regexp.MustCompile(`__(.+?)__`), "<b>$1</b>"},
	{regexp.MustCompile(`~~(.+?)~~`), "<s>$1</s>"},
	{regexp.MustCompile(`(?m)^[-*]\s+`), "• "},
	{regexp.MustCompile(`\*([^*\n]+)\*`), "<i>$1</i>"},
	{regexp.MustCompile(`\b_([^_\n]+)_\b`), "<i>$1</i>"},
}

var reInlineCode = regexp.MustCompile("`([^`\n]+)`")

func proseHTML(text string) string {
	text = sanitizeUTF8(text)
	var codes []string
	text = reInlineCode.ReplaceAllStringFunc(text, func(m string) string {
		codes = append(codes, m[1:len(m)-1])
		return fmt.Sprintf("\x00%d\x00", len(codes)-1)
	})
	text = escapeHTML(text)
	for _, r := range proseRules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	for i, code := range codes {
		text = strings.Replace(text, fmt.Sprintf("\x00%d\x00", i), "<code>"+escapeHTML(code)+"</code>", 1)
	}
	return text
}

var stripRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("(?m)^```\\w*\n?"), ""},
	{regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`), "$1: $2"},
	{regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`), "$1 ($2)"},
	{regexp.MustCompile(`\*\*\*(.+?)\*\*\*`), "$1"},
	{regexp.MustCompile(`\*\*(.+?)\*\*`), "$1"},
	{regexp.MustCompile(`__(.+?)__`), "$1"},
	{regexp.MustCompile(`\*([^*\n]+)\*`), "$1"},
	{regexp.MustCompile(`~~(.+?)~~`), "$1"},
	{regexp.MustCompile("`([^`]+)`"), "$1"},
	{regexp.MustCompile(`(?m)^#{1,6}\s+`), ""},
}

// stripMarkdown is the plain-text fallback for when Telegram rejects HTML.
func stripMarkdown(text string) string {
	for _, r := range stripRules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return strings.ReplaceAll(text, "```", "")
}

func sanitizeUTF8(text string) string {
	text = strings.ToValidUTF8(text, "")
	return strings.ReplaceAll(text, "\x00", "")
}

func escapeHTML(text string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(text)
}

// splitMessage cuts text into chunks of at most maxLen bytes, preferring
// newline boundaries. Formatting tags open at a cut are closed at the end
// of the chunk and reopened at the start of the next.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var raw []string
	for len(text) > maxLen {
		cut := cutPoint(text, maxLen)
		raw = append(raw, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		raw = append(raw, text)
	}

	out := make([]string, 0, len(raw))
	var open []string
	for _, chunk := range raw {
		chunk = strings.Join(open, "") + chunk
		open = unclosedTags(chunk)
		for i := len(open) - 1; i >= 0; i-- {
			chunk += "</" + parseTagName(open[i]) + ">"
		}
		out = append(out, chunk)
	}
	return out
}

// cutPoint picks where to end the next chunk: the last newline, else maxLen
// moved back so it splits neither a rune nor a tag.
func cutPoint(text string, maxLen int) int {
	if nl := strings.LastIndex(text[:maxLen], "\n"); nl > 0 {
		return nl
	}
	cut := maxLen
	if lt := strings.LastIndexByte(text[:cut], '<'); lt > 0 && lt > strings.LastIndexByte(text[:cut], '>') {
		cut = lt
	}
	for cut > 1 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}

// parseTagName extracts the tag name: `<a href="...">` gives "a".
func parseTagName(openTag string) string {
	inner := openTag[1 : len(openTag)-1]
	if sp := strings.IndexByte(inner, ' '); sp > 0 {
		return inner[:sp]
	}
	return inner
}

// popMatchingTag removes the innermost opener named closeTag.
func popMatchingTag(stack []string, closeTag string) []string {
	for k := len(stack) - 1; k >= 0; k-- {
		if parseTagName(stack[k]) == closeTag {
			return append(stack[:k], stack[k+1:]...)
		}
	}
	return stack
}

// unclosedTags returns the Telegram formatting tags still open at the end
// of html, outermost first.
func unclosedTags(html string) []string {
	var stack []string
	for i := 0; i < len(html); {
		lt := strings.IndexByte(html[i:], '<')
		if lt < 0 {
			break
		}
		lt += i
		gt := strings.IndexByte(html[lt:], '>')
		if gt < 0 {
			break
		}
		gt += lt
		tag := html[lt : gt+1]
		i = gt + 1
		if len(tag) < htmlTagMinLen {
			continue
		}
		if tag[1] == '/' {
			stack = popMatchingTag(stack, tag[2:len(tag)-1])
			continue
		}
		parts := strings.Fields(strings.TrimSuffix(tag[1:len(tag)-1], "/"))
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "b", "i", "s", "u", "a", "code", "pre", "blockquote":
			stack = append(stack, tag)
		}
	}
	return stack
}
