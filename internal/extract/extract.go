// Package extract turns uploaded file content into plain text for indexing.
// Supported inputs: PDF, HTML, and plain/markdown text.
package extract

import (
	"fmt"
	"strings"
)

// Text extracts plain text from content according to its MIME type.
// Unknown types return an error; the caller decides whether to skip the
// document or surface the failure.
func Text(content []byte, mimeType string) (string, error) {
	// Strip parameters like "; charset=utf-8".
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))

	switch mimeType {
	case "application/pdf":
		return pdfText(content)
	case "text/html", "application/xhtml+xml":
		return htmlText(content)
	case "text/plain", "text/markdown", "text/csv", "":
		return normalize(string(content)), nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mimeType)
	}
}

// normalize trims trailing whitespace per line and collapses runs of blank
// lines, keeping chunk boundaries stable across sources.
func normalize(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
