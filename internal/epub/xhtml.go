package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// blockElements start a new paragraph in extracted text.
var blockElements = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "li": true, "blockquote": true,
	"tr": true, "section": true,
}

// skipElements have no user-visible text.
var skipElements = map[string]bool{
	"head": true, "style": true, "script": true,
}

// ExtractText pulls the readable text out of a chapter XHTML document.
// Block-level elements become blank-line paragraph breaks, which is the
// boundary form the segmenter prefers.
func ExtractText(doc []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var paragraphs []string
	var current strings.Builder
	skip := 0

	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
		current.Reset()
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse chapter document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			if skipElements[name] {
				skip++
			}
			if blockElements[name] {
				flush()
			}
			if name == "br" {
				current.WriteByte('\n')
			}
		case xml.EndElement:
			name := strings.ToLower(t.Name.Local)
			if skipElements[name] && skip > 0 {
				skip--
			}
			if blockElements[name] {
				flush()
			}
		case xml.CharData:
			if skip == 0 {
				current.Write(t)
			}
		}
	}
	flush()

	return strings.Join(paragraphs, "\n\n"), nil
}

// documentTitle returns the <title> of a chapter document, or the first
// heading, or empty.
func documentTitle(doc []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var inTitle, inHeading bool
	var heading string

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			if name == "title" {
				inTitle = true
			}
			if name == "h1" || name == "h2" {
				inHeading = true
			}
		case xml.EndElement:
			name := strings.ToLower(t.Name.Local)
			if name == "title" {
				inTitle = false
			}
			if name == "h1" || name == "h2" {
				if heading != "" {
					return heading
				}
				inHeading = false
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			if inTitle {
				return text
			}
			if inHeading {
				heading += text
			}
		}
	}
	return heading
}

// RenderChapter rebuilds a chapter XHTML document from cleaned text. The
// cleaned text's blank-line paragraphs become <p> elements.
func RenderChapter(title, text string) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	b.WriteString("<head>\n")
	fmt.Fprintf(&b, "  <title>%s</title>\n", escape(title))
	b.WriteString("</head>\n<body>\n")
	if title != "" {
		fmt.Fprintf(&b, "  <h1>%s</h1>\n", escape(title))
	}

	for i, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		// The extracted text leads with the heading; don't emit it twice.
		if i == 0 && para == title {
			continue
		}
		// Single line breaks inside a paragraph survive as <br/>.
		lines := strings.Split(para, "\n")
		for i, line := range lines {
			lines[i] = escape(strings.TrimSpace(line))
		}
		fmt.Fprintf(&b, "  <p>%s</p>\n", strings.Join(lines, "<br/>"))
	}

	b.WriteString("</body>\n</html>\n")
	return b.Bytes()
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
