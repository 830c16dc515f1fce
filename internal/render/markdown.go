// Package render converts a finished session.CitedOutput into HTML for
// display, using goldmark. It is presentation-only: it never mutates the
// CitedOutput it reads, so the citation identity invariant stays owned
// entirely by package citation.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"

	"github.com/brightfield-labs/deepresearch/session"
)

// md is configured once; goldmark's parser/renderer are safe for concurrent
// use once constructed.
var md = goldmark.New()

// ToHTML renders a CitedOutput's text as HTML. Numeric citation anchors
// (⟦N⟧) pass through as plain text; ToHTML does not turn them into links.
func ToHTML(out session.CitedOutput) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(out.Text), &buf); err != nil {
		return "", fmt.Errorf("render: converting markdown: %w", err)
	}
	return buf.String(), nil
}
