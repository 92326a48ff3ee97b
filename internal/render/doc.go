package render

import (
	"html"
	"strings"
)

type blockKind int

const (
	blockHeading blockKind = iota
	blockImage
	blockField
	blockItem
	blockBullet
	blockPara
)

type field struct{ label, value string }

type block struct {
	kind   blockKind
	level  int
	text   string
	url    string
	fields []field
}

func (b block) listy() bool {
	return b.kind == blockField || b.kind == blockItem || b.kind == blockBullet
}

// doc is a tiny layout model shared by the Markdown and HTML printers.
type doc struct{ blocks []block }

func (d *doc) heading(level int, text string) {
	d.blocks = append(d.blocks, block{kind: blockHeading, level: level, text: text})
}

func (d *doc) image(alt, url string) {
	if url == "" {
		return
	}
	d.blocks = append(d.blocks, block{kind: blockImage, text: alt, url: url})
}

// field adds a "Label: value" line.
func (d *doc) field(label, value string) {
	d.blocks = append(d.blocks, block{kind: blockField, fields: []field{{label, value}}})
}

// item adds one list entry made of several fields.
func (d *doc) item(fields ...field) {
	d.blocks = append(d.blocks, block{kind: blockItem, fields: fields})
}

func (d *doc) bullet(text string) {
	d.blocks = append(d.blocks, block{kind: blockBullet, text: text})
}

func (d *doc) para(text string) {
	d.blocks = append(d.blocks, block{kind: blockPara, text: text})
}

func (d *doc) markdown() string {
	var sb strings.Builder
	for i, b := range d.blocks {
		if i > 0 {
			sb.WriteString(separator(d.blocks[i-1], b))
		}
		switch b.kind {
		case blockHeading:
			sb.WriteString(strings.Repeat("#", b.level))
			sb.WriteByte(' ')
			sb.WriteString(b.text)
		case blockImage:
			sb.WriteString("![" + b.text + "](" + b.url + ")")
		case blockField, blockItem:
			sb.WriteString("- ")
			for j, f := range b.fields {
				if j > 0 {
					sb.WriteString(" | ")
				}
				sb.WriteString("**" + f.label + ":** " + f.value)
			}
		case blockBullet:
			sb.WriteString("- " + b.text)
		case blockPara:
			sb.WriteString(b.text)
		}
	}
	return sb.String()
}

func (d *doc) html() string {
	var sb strings.Builder
	for i, b := range d.blocks {
		if i > 0 {
			sb.WriteString(separator(d.blocks[i-1], b))
		}
		switch b.kind {
		case blockHeading:
			sb.WriteString("<b>" + html.EscapeString(b.text) + "</b>")
		case blockImage:
			sb.WriteString(`<a href="` + html.EscapeString(b.url) + `">` + html.EscapeString(b.text) + "</a>")
		case blockField, blockItem:
			if b.kind == blockItem {
				sb.WriteString("• ")
			}
			for j, f := range b.fields {
				if j > 0 {
					sb.WriteString(" | ")
				}
				sb.WriteString("<b>" + html.EscapeString(f.label) + ":</b> " + html.EscapeString(f.value))
			}
		case blockBullet:
			sb.WriteString("• " + html.EscapeString(b.text))
		case blockPara:
			sb.WriteString(html.EscapeString(b.text))
		}
	}
	return sb.String()
}

// separator keeps consecutive list lines together and puts a blank line
// between everything else.
func separator(prev, next block) string {
	if prev.listy() && next.listy() {
		return "\n"
	}
	if prev.kind == blockHeading && next.kind == blockPara && prev.level >= 3 {
		return "\n"
	}
	return "\n\n"
}
