// Package docs handles service-event document attachments: invoices and
// inspection reports land as raw bytes and a background worker derives
// searchable text from them.
package docs

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Extract derives plain text from an attachment. PDFs go through the pdf
// reader, HTML through the tokenizer (title plus body text), anything that
// is valid UTF-8 passes through unchanged.
func Extract(name, mime string, content []byte) (string, error) {
	switch {
	case mime == "application/pdf" || strings.HasSuffix(strings.ToLower(name), ".pdf") || bytes.HasPrefix(content, []byte("%PDF")):
		return extractPDF(content)
	case strings.HasPrefix(mime, "text/html") || looksLikeHTML(content):
		return extractHTML(content)
	case utf8.Valid(content):
		return string(content), nil
	default:
		return "", fmt.Errorf("unsupported document type %q for %s", mime, name)
	}
}

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func looksLikeHTML(content []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(content))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

// extractHTML walks the parse tree collecting text nodes, skipping script
// and style. The document title, when present, becomes the first line.
func extractHTML(content []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var title string
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := strings.Join(parts, " ")
	if title != "" {
		text = title + "\n" + text
	}
	return strings.TrimSpace(text), nil
}
