package process

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta is the metadata lifted from one crawled page.
type PageMeta struct {
	Title       string
	Description string
}

// ExtractMeta pulls the title and description out of an HTML document.
// Falls back from <meta name="description"> to og:description to the first
// paragraph of visible text.
func ExtractMeta(body []byte) (PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return PageMeta{}, err
	}

	meta := PageMeta{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		meta.Description = strings.TrimSpace(desc)
	}
	if meta.Description == "" {
		if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
			meta.Description = strings.TrimSpace(desc)
		}
	}
	if meta.Description == "" {
		first := strings.TrimSpace(doc.Find("p").First().Text())
		meta.Description = Excerpt(strings.Join(strings.Fields(first), " "), 200)
	}

	return meta, nil
}
