package extract

import (
	"bytes"
	"fmt"
	"mime"
	"regexp"
	"strings"

	"github.com/sitewise-ai/sitewise/pkg/process"
)

// ErrUnsupported wraps the media types the extractor cannot handle. The
// document is marked failed with this message and the original blob is kept.
type ErrUnsupported struct {
	MediaType string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("unsupported media type %q", e.MediaType)
}

var markdownSyntax = regexp.MustCompile("(?m)" +
	`^#{1,6}\s+|` + // headings
	"`{1,3}|" + // code fences and spans
	`^\s*[-*+]\s+|` + // list bullets
	`\[([^\]]*)\]\([^)]*\)`) // links

// Text extracts plain text from an uploaded file. HTML is reduced to its
// visible text, markdown has its syntax stripped, and plain text passes
// through. Anything else is an extraction failure.
func Text(mediaType string, data []byte) (string, error) {
	mt := mediaType
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mt = parsed
	}

	switch mt {
	case "text/html", "application/xhtml+xml":
		text, err := process.ExtractText(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("extract html text: %w", err)
		}
		return text, nil
	case "text/markdown":
		return normalize(markdownSyntax.ReplaceAllString(string(data), "$1")), nil
	case "text/plain", "text/csv", "":
		return normalize(string(data)), nil
	default:
		return "", &ErrUnsupported{MediaType: mediaType}
	}
}

func normalize(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
